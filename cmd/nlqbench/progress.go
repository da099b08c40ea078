// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/AleutianAI/nlqbench/pkg/ux"
	"github.com/AleutianAI/nlqbench/services/harness/runner"
)

// runProgress renders a live progress display off the runner's event
// stream. It returns when the stream closes. Ctrl+C cancels the run
// through the supplied cancel function; the display then keeps
// draining until the runner winds down and closes the channel.
func runProgress(events <-chan runner.Event, cancel context.CancelFunc) error {
	m := newProgressModel(events, cancel)
	p := tea.NewProgram(m)
	final, err := p.Run()
	if err != nil {
		return err
	}
	if pm, ok := final.(progressModel); ok && pm.lastLine != "" {
		// The final repaint clears on exit; keep the last status visible.
		fmt.Println(pm.lastLine)
	}
	return nil
}

// eventMsg wraps one runner event for bubbletea.
type eventMsg struct {
	event runner.Event
}

// streamClosedMsg signals the run is over and the display should exit.
type streamClosedMsg struct{}

// waitForEvent blocks until the next runner event is available.
func waitForEvent(events <-chan runner.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

type progressModel struct {
	bar    progress.Model
	events <-chan runner.Event
	cancel context.CancelFunc

	runID      string
	endpoint   string
	lastLine   string
	completed  int
	total      int
	matched    int
	mismatched int
	failed     int
	cancelling bool
}

func newProgressModel(events <-chan runner.Event, cancel context.CancelFunc) progressModel {
	return progressModel{
		bar:    progress.New(progress.WithDefaultGradient()),
		events: events,
		cancel: cancel,
	}
}

func (m progressModel) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		width := typed.Width - 8
		if width > 60 {
			width = 60
		}
		if width > 0 {
			m.bar.Width = width
		}
		return m, nil

	case tea.KeyMsg:
		if typed.String() == "ctrl+c" {
			// Cancel the run; the event channel closing ends the UI.
			m.cancelling = true
			m.cancel()
		}
		return m, nil

	case eventMsg:
		m = m.apply(typed.event)
		return m, waitForEvent(m.events)

	case streamClosedMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) apply(ev runner.Event) progressModel {
	if ev.Total > 0 {
		m.total = ev.Total
	}
	switch ev.Type {
	case runner.EventRunStarted:
		m.runID = ev.RunID
	case runner.EventQuestionStarted:
		m.endpoint = ev.Endpoint
	case runner.EventQuestionFinished:
		m.completed = ev.Completed
		m.endpoint = ev.Endpoint
		if res := ev.Result; res != nil {
			icon, reason := statusOf(res)
			switch icon {
			case ux.IconError:
				m.failed++
			case ux.IconWarning:
				m.mismatched++
			default:
				m.matched++
			}
			m.lastLine = fmt.Sprintf("%s %s/%s", icon.Render(), ev.Endpoint, ev.QuestionID)
			if reason != "" {
				m.lastLine += " " + ux.Styles.Muted.Render("("+truncate(reason, 60)+")")
			}
		}
	case runner.EventEndpointFinished:
		m.endpoint = ev.Endpoint
	}
	return m
}

func (m progressModel) View() string {
	var b strings.Builder

	title := "Benchmarking"
	if m.endpoint != "" {
		title += " " + m.endpoint
	}
	if m.cancelling {
		title += " (cancelling)"
	}
	b.WriteString(ux.Styles.Title.Render(title))
	b.WriteString("\n")

	pct := 0.0
	if m.total > 0 {
		pct = float64(m.completed) / float64(m.total)
	}
	b.WriteString(m.bar.ViewAs(pct))
	b.WriteString(fmt.Sprintf(" %d/%d\n", m.completed, m.total))

	b.WriteString(fmt.Sprintf("%s %d matched  %s %d mismatched  %s %d failed\n",
		ux.IconSuccess.Render(), m.matched,
		ux.IconWarning.Render(), m.mismatched,
		ux.IconError.Render(), m.failed,
	))
	if m.lastLine != "" {
		b.WriteString(m.lastLine)
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
