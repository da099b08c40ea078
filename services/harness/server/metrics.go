// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/nlqbench/services/harness/runner"
)

var (
	// questionsTotal counts finished questions by endpoint and outcome
	questionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nlqbench_questions_total",
		Help: "Finished benchmark questions by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	// matchesTotal counts questions whose result matched the reference
	matchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nlqbench_matches_total",
		Help: "Questions whose generated SQL matched the reference result",
	}, []string{"endpoint"})

	// questionLatency tracks mean translation latency per question
	questionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nlqbench_question_latency_ms",
		Help:    "Mean translation latency per question in milliseconds",
		Buckets: prometheus.ExponentialBuckets(10, 2, 12), // 10ms to ~40s
	}, []string{"endpoint"})
)

// observe updates the prometheus collectors for one runner event.
// Only question_finished events carry anything worth counting.
func observe(ev runner.Event) {
	if ev.Type != runner.EventQuestionFinished || ev.Result == nil {
		return
	}
	res := ev.Result

	outcome := "mismatched"
	switch {
	case res.Failed():
		outcome = "failed"
	case res.Verdict.Match:
		outcome = "matched"
	}
	questionsTotal.WithLabelValues(ev.Endpoint, outcome).Inc()
	if outcome == "matched" {
		matchesTotal.WithLabelValues(ev.Endpoint).Inc()
	}
	if res.Metrics != nil {
		questionLatency.WithLabelValues(ev.Endpoint).Observe(res.Metrics.MeanMs)
	}
}
