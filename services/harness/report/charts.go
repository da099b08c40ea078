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
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/AleutianAI/nlqbench/services/harness/result"
	"github.com/AleutianAI/nlqbench/services/harness/runner"
)

// renderCharts assembles the HTML dashboard page: latency percentiles
// and tier accuracy per endpoint, plus an overall verdict breakdown.
func renderCharts(rep *runner.RunReport) *components.Page {
	page := components.NewPage()
	page.AddCharts(latencyBar(rep), accuracyBar(rep), verdictPie(rep))
	return page
}

func latencyBar(rep *runner.RunReport) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Translation latency",
			Subtitle: fmt.Sprintf("milliseconds per endpoint, run %s", rep.RunID),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	var names []string
	var p50, p95, p99 []opts.BarData
	for i := range rep.Endpoints {
		ep := &rep.Endpoints[i]
		names = append(names, ep.Endpoint)
		if m := ep.Summary.Latency; m != nil {
			p50 = append(p50, opts.BarData{Value: m.P50Ms})
			p95 = append(p95, opts.BarData{Value: m.P95Ms})
			p99 = append(p99, opts.BarData{Value: m.P99Ms})
		} else {
			p50 = append(p50, opts.BarData{Value: 0})
			p95 = append(p95, opts.BarData{Value: 0})
			p99 = append(p99, opts.BarData{Value: 0})
		}
	}

	bar.SetXAxis(names).
		AddSeries("p50", p50).
		AddSeries("p95", p95).
		AddSeries("p99", p99)
	return bar
}

func accuracyBar(rep *runner.RunReport) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Accuracy by schema tier",
			Subtitle: "percent matched per endpoint",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	var names []string
	overall := make([]opts.BarData, 0, len(rep.Endpoints))
	tiers := map[result.QualityTier][]opts.BarData{}
	order := []result.QualityTier{result.TierHigh, result.TierMedium, result.TierLow}

	for i := range rep.Endpoints {
		ep := &rep.Endpoints[i]
		names = append(names, ep.Endpoint)
		overall = append(overall, opts.BarData{Value: ep.Summary.Accuracy * 100})

		byTier := map[result.QualityTier]float64{}
		seen := map[result.QualityTier]bool{}
		for _, ta := range ep.Summary.Robustness.Tiers {
			byTier[ta.Tier] = ta.Accuracy * 100
			seen[ta.Tier] = true
		}
		for _, tier := range order {
			val := opts.BarData{Value: byTier[tier]}
			if !seen[tier] {
				val = opts.BarData{Value: 0}
			}
			tiers[tier] = append(tiers[tier], val)
		}
	}

	bar.SetXAxis(names).AddSeries("overall", overall)
	for _, tier := range order {
		hasData := false
		for i := range rep.Endpoints {
			for _, ta := range rep.Endpoints[i].Summary.Robustness.Tiers {
				if ta.Tier == tier {
					hasData = true
				}
			}
		}
		if hasData {
			bar.AddSeries(tier.String(), tiers[tier])
		}
	}
	return bar
}

func verdictPie(rep *runner.RunReport) *charts.Pie {
	var matched, mismatched, failed int
	for i := range rep.Endpoints {
		for _, res := range rep.Endpoints[i].Results {
			switch {
			case res.Failed():
				failed++
			case res.Verdict.Match:
				matched++
			default:
				mismatched++
			}
		}
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Verdicts",
			Subtitle: "all endpoints combined",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	pie.AddSeries("verdicts", []opts.PieData{
		{Name: "matched", Value: matched},
		{Name: "mismatched", Value: mismatched},
		{Name: "failed", Value: failed},
	}).SetSeriesOptions(
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {c}"}),
	)
	return pie
}
