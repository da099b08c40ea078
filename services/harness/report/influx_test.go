// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/nlqbench/services/harness/config"
)

func tagMap(p *write.Point) map[string]string {
	tags := make(map[string]string)
	for _, t := range p.TagList() {
		tags[t.Key] = t.Value
	}
	return tags
}

func fieldMap(p *write.Point) map[string]interface{} {
	fields := make(map[string]interface{})
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	return fields
}

func TestBuildPoints(t *testing.T) {
	rep := createTestReport()
	points := buildPoints(rep)

	// One endpoint summary plus one point per question.
	require.Len(t, points, 4)

	run := points[0]
	assert.Equal(t, "nlq_run", run.Name())
	tags := tagMap(run)
	assert.Equal(t, "mock-sut", tags["endpoint"])
	assert.Equal(t, "shop", tags["database"])
	assert.Equal(t, rep.RunID, tags["run_id"])
	fields := fieldMap(run)
	assert.Equal(t, 0.5, fields["accuracy"])
	assert.Equal(t, int64(3), fields["questions"])
	assert.Equal(t, 55.0, fields["p95_ms"])
	assert.Equal(t, 0.5, fields["robustness"])
	assert.True(t, run.Time().Equal(rep.FinishedAt))

	matched := points[1]
	assert.Equal(t, "nlq_question", matched.Name())
	qTags := tagMap(matched)
	assert.Equal(t, "q-count", qTags["question_id"])
	assert.Equal(t, "high", qTags["tier"])
	qFields := fieldMap(matched)
	assert.Equal(t, int64(1), qFields["matched"])
	assert.Equal(t, int64(0), qFields["failed"])
	assert.Equal(t, 40.0, qFields["mean_ms"])

	failedPoint := points[3]
	fFields := fieldMap(failedPoint)
	assert.Equal(t, int64(0), fFields["matched"])
	assert.Equal(t, int64(1), fFields["failed"])
	_, hasMean := fFields["mean_ms"]
	assert.False(t, hasMean, "no metrics for a failed question")
}

func TestBuildPointsSkipsUndefinedRobustness(t *testing.T) {
	rep := createTestReport()
	rep.Endpoints[0].Summary.Robustness.Available = false

	fields := fieldMap(buildPoints(rep)[0])
	_, ok := fields["robustness"]
	assert.False(t, ok)
}

func TestNewInfluxSinkValidation(t *testing.T) {
	_, err := NewInfluxSink(config.InfluxConfig{})
	require.Error(t, err)

	_, err = NewInfluxSink(config.InfluxConfig{URL: "http://localhost:8086"})
	require.ErrorIs(t, err, ErrMissingToken)

	_, err = NewInfluxSink(config.InfluxConfig{URL: "http://localhost:8086", TokenEnv: "NLQBENCH_TEST_UNSET_TOKEN"})
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestInfluxPublish(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/write") {
			data, _ := io.ReadAll(r.Body)
			body = string(data)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	t.Setenv("NLQBENCH_TEST_INFLUX_TOKEN", "test-token")
	sink, err := NewInfluxSink(config.InfluxConfig{
		URL:      srv.URL,
		TokenEnv: "NLQBENCH_TEST_INFLUX_TOKEN",
		Org:      "aleutian",
		Bucket:   "nlqbench",
	})
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Publish(context.Background(), createTestReport()))

	assert.Contains(t, body, "nlq_run")
	assert.Contains(t, body, "nlq_question")
	assert.Contains(t, body, "endpoint=mock-sut")
	assert.Contains(t, body, "question_id=q-count")
}
