// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package question

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/nlqbench/services/harness/result"
	"github.com/AleutianAI/nlqbench/services/harness/sqlinspect"
)

// ----------------------------------------------------------------------------
// Bank
// ----------------------------------------------------------------------------

// Bank is a validated, ordered collection of questions indexed by id.
//
// Thread Safety: A Bank is immutable after construction and safe for
// concurrent readers. Watch delivers replacement banks rather than
// mutating a live one.
type Bank struct {
	questions []Question
	byID      map[string]*Question
}

// Len returns the number of questions in the bank.
func (b *Bank) Len() int {
	return len(b.questions)
}

// Questions returns the questions in load order.
func (b *Bank) Questions() []Question {
	out := make([]Question, len(b.questions))
	copy(out, b.questions)
	return out
}

// ByID returns the question with the given id.
func (b *Bank) ByID(id string) (*Question, bool) {
	q, ok := b.byID[id]
	return q, ok
}

// VariantsOf returns the degraded-phrasing variants linked to a base
// question, in load order.
func (b *Bank) VariantsOf(baseID string) []Question {
	var out []Question
	for _, q := range b.questions {
		if q.BaseID == baseID {
			out = append(out, q)
		}
	}
	return out
}

// Filter selects questions matching every non-zero criterion. Tags
// match when the question carries any of the requested tags.
type Filter struct {
	Domain string
	Levels []sqlinspect.Level
	Tiers  []result.QualityTier
	Tags   []string
}

// Filter returns a new bank holding only the matching questions.
func (b *Bank) Filter(f Filter) *Bank {
	matched := make([]Question, 0, len(b.questions))
	for _, q := range b.questions {
		if f.Domain != "" && q.Domain != f.Domain {
			continue
		}
		if len(f.Levels) > 0 && !containsLevel(f.Levels, q.Complexity) {
			continue
		}
		if len(f.Tiers) > 0 && !containsTier(f.Tiers, q.Tier) {
			continue
		}
		if len(f.Tags) > 0 && !anyTag(&q, f.Tags) {
			continue
		}
		matched = append(matched, q)
	}

	filtered := &Bank{
		questions: matched,
		byID:      make(map[string]*Question, len(matched)),
	}
	for i := range filtered.questions {
		filtered.byID[filtered.questions[i].ID] = &filtered.questions[i]
	}
	return filtered
}

// Stats summarizes the composition of a bank.
type Stats struct {
	Total        int            `json:"total"`
	ByDomain     map[string]int `json:"by_domain"`
	ByComplexity map[string]int `json:"by_complexity"`
	ByTier       map[string]int `json:"by_tier"`
	ByTag        map[string]int `json:"by_tag"`
}

// Stats counts questions by domain, complexity level, quality tier,
// and tag.
func (b *Bank) Stats() Stats {
	s := Stats{
		Total:        len(b.questions),
		ByDomain:     make(map[string]int),
		ByComplexity: make(map[string]int),
		ByTier:       make(map[string]int),
		ByTag:        make(map[string]int),
	}
	for _, q := range b.questions {
		if q.Domain != "" {
			s.ByDomain[q.Domain]++
		}
		s.ByComplexity[q.Complexity.String()]++
		s.ByTier[q.Tier.String()]++
		for _, tag := range q.Tags {
			s.ByTag[tag]++
		}
	}
	return s
}

func containsLevel(levels []sqlinspect.Level, l sqlinspect.Level) bool {
	for _, candidate := range levels {
		if candidate == l {
			return true
		}
	}
	return false
}

func containsTier(tiers []result.QualityTier, t result.QualityTier) bool {
	for _, candidate := range tiers {
		if candidate == t {
			return true
		}
	}
	return false
}

func anyTag(q *Question, tags []string) bool {
	for _, tag := range tags {
		if q.HasTag(tag) {
			return true
		}
	}
	return false
}

// ----------------------------------------------------------------------------
// Loading
// ----------------------------------------------------------------------------

// bankDoc is the YAML shape of a multi-question bank file.
type bankDoc struct {
	Questions []Question `yaml:"questions"`
}

// Load reads a bank from a YAML file or a directory of YAML files.
//
// Inputs:
//   - path: A bank file, a single-question file, or a directory whose
//     *.yaml and *.yml files load in sorted filename order.
//
// Outputs:
//   - *Bank: The validated bank.
//   - error: Unreadable files, malformed YAML, or validation failures
//     (blank ids or text, missing golden SQL, duplicate ids, dangling
//     base references). A bank with zero questions is ErrEmptyBank.
func Load(path string) (*Bank, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat question bank %s: %w", path, err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// LoadFile reads a single bank file. The file holds either a list of
// questions under a "questions:" key or one question document.
func LoadFile(path string) (*Bank, error) {
	questions, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return newBank(questions)
}

// LoadDir reads every *.yaml and *.yml file under dir, non-recursive,
// in sorted filename order. Any unloadable file fails the whole load;
// a benchmark over a silently partial bank would skew every score it
// produces.
func LoadDir(dir string) (*Bank, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read question directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var questions []Question
	for _, name := range names {
		loaded, err := readFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		questions = append(questions, loaded...)
	}
	return newBank(questions)
}

// readFile parses one YAML file into its questions and validates each
// in isolation.
func readFile(path string) ([]Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question file %s: %w", path, err)
	}

	var doc bankDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse question file %s: %w", path, err)
	}

	questions := doc.Questions
	if len(questions) == 0 {
		// Not a bank document; try a single question document.
		var single Question
		if err := yaml.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("parse question file %s: %w", path, err)
		}
		if single.ID == "" {
			return nil, fmt.Errorf("%w: %s", ErrEmptyBank, path)
		}
		questions = []Question{single}
	}

	for i := range questions {
		if err := questions[i].validate(); err != nil {
			return nil, fmt.Errorf("question file %s: %w", path, err)
		}
		if questions[i].Complexity < sqlinspect.Level(1) {
			questions[i].Complexity = inferComplexity(&questions[i])
		}
	}
	return questions, nil
}

// newBank indexes questions and runs the cross-question checks.
func newBank(questions []Question) (*Bank, error) {
	if len(questions) == 0 {
		return nil, ErrEmptyBank
	}

	b := &Bank{
		questions: questions,
		byID:      make(map[string]*Question, len(questions)),
	}
	for i := range b.questions {
		q := &b.questions[i]
		if _, exists := b.byID[q.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, q.ID)
		}
		b.byID[q.ID] = q
	}
	for i := range b.questions {
		q := &b.questions[i]
		if q.BaseID == "" {
			continue
		}
		if _, ok := b.byID[q.BaseID]; !ok {
			return nil, fmt.Errorf("%w: question %q references %q", ErrInvalidBaseID, q.ID, q.BaseID)
		}
	}
	return b, nil
}

// inferComplexity screens the golden SQL when a question declares no
// level. Dialects are tried in sorted order so inference is stable; an
// unparseable golden falls back to L1.
func inferComplexity(q *Question) sqlinspect.Level {
	dialects := make([]string, 0, len(q.GoldenSQL))
	for dialect := range q.GoldenSQL {
		dialects = append(dialects, dialect)
	}
	sort.Strings(dialects)

	for _, dialect := range dialects {
		report, err := sqlinspect.Screen(context.Background(), q.GoldenSQL[dialect])
		if err != nil || !report.Valid {
			continue
		}
		return report.Complexity
	}
	return sqlinspect.Level(1)
}
