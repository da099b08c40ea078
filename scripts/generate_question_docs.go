// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// generate_question_docs generates a markdown reference from a question bank.
//
// Usage:
//
//	go run scripts/generate_question_docs.go examples/questions.yaml > docs/question_reference.md
//
// The generated documentation includes:
//   - Question inventory grouped by domain
//   - Complexity and schema-tier distribution
//   - Dialect coverage of the golden SQL
//   - Tag index and degraded-variant lineage
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// QuestionBankYAML is the root structure for YAML deserialization.
type QuestionBankYAML struct {
	Questions []QuestionYAML `yaml:"questions"`
}

// QuestionYAML represents a single question entry in the YAML file.
type QuestionYAML struct {
	ID         string            `yaml:"id"`
	Text       string            `yaml:"text"`
	Domain     string            `yaml:"domain,omitempty"`
	Complexity string            `yaml:"complexity,omitempty"`
	Tier       string            `yaml:"tier,omitempty"`
	GoldenSQL  map[string]string `yaml:"golden_sql"`
	BaseID     string            `yaml:"base_id,omitempty"`
	Tags       []string          `yaml:"tags,omitempty"`
}

// DomainGroup represents all questions belonging to one domain.
type DomainGroup struct {
	Name      string
	Questions []QuestionYAML
}

func main() {
	path := "questions.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
		os.Exit(1)
	}

	var bank QuestionBankYAML
	if err := yaml.Unmarshal(data, &bank); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing YAML: %v\n", err)
		os.Exit(1)
	}

	groups := groupByDomain(bank.Questions)
	generateMarkdown(path, groups, bank.Questions)
}

// groupByDomain buckets questions per domain, sorted by domain name.
// Questions without a domain land in "(unassigned)".
func groupByDomain(questions []QuestionYAML) []DomainGroup {
	byDomain := make(map[string][]QuestionYAML)
	for _, q := range questions {
		name := q.Domain
		if name == "" {
			name = "(unassigned)"
		}
		byDomain[name] = append(byDomain[name], q)
	}

	names := make([]string, 0, len(byDomain))
	for name := range byDomain {
		names = append(names, name)
	}
	sort.Strings(names)

	var result []DomainGroup
	for _, name := range names {
		result = append(result, DomainGroup{Name: name, Questions: byDomain[name]})
	}
	return result
}

// generateMarkdown outputs the full markdown documentation.
func generateMarkdown(path string, groups []DomainGroup, all []QuestionYAML) {
	fmt.Println("# Question Bank Reference")
	fmt.Println()
	fmt.Println("## Overview")
	fmt.Println()
	fmt.Printf("This document is a reference for every benchmark question in `%s`.\n", path)
	fmt.Println("Degraded variants share a `base_id` with their well-formed original; the")
	fmt.Println("robustness score compares accuracy across the two.")
	fmt.Println()
	fmt.Printf("**Generated:** %s\n", time.Now().Format("2006-01-02 15:04:05 UTC"))
	fmt.Println()

	// Statistics
	byComplexity := make(map[string]int)
	byTier := make(map[string]int)
	variants := 0
	dialects := make(map[string]int)
	for _, q := range all {
		if q.Complexity != "" {
			byComplexity[q.Complexity]++
		}
		if q.Tier != "" {
			byTier[q.Tier]++
		}
		if q.BaseID != "" {
			variants++
		}
		for d := range q.GoldenSQL {
			dialects[d]++
		}
	}

	fmt.Println("## Summary Statistics")
	fmt.Println()
	fmt.Println("| Metric | Count |")
	fmt.Println("|--------|-------|")
	fmt.Printf("| Total Questions | %d |\n", len(all))
	fmt.Printf("| Domains | %d |\n", len(groups))
	fmt.Printf("| Degraded Variants | %d |\n", variants)
	for _, level := range sortedKeys(byComplexity) {
		fmt.Printf("| Complexity %s | %d |\n", level, byComplexity[level])
	}
	for _, tier := range sortedKeys(byTier) {
		fmt.Printf("| Tier %s | %d |\n", tier, byTier[tier])
	}
	for _, d := range sortedKeys(dialects) {
		fmt.Printf("| Golden SQL for %s | %d |\n", d, dialects[d])
	}
	fmt.Println()

	// Quick reference table (all questions)
	fmt.Println("---")
	fmt.Println()
	fmt.Println("## Quick Reference")
	fmt.Println()
	fmt.Println("| ID | Domain | Complexity | Tier | Variant Of | Tags |")
	fmt.Println("|----|--------|------------|------|------------|------|")
	for _, group := range groups {
		for _, q := range group.Questions {
			base := q.BaseID
			if base == "" {
				base = "-"
			}
			tags := strings.Join(q.Tags, ", ")
			if tags == "" {
				tags = "-"
			}
			fmt.Printf("| `%s` | %s | %s | %s | %s | %s |\n",
				q.ID, group.Name, orDash(q.Complexity), orDash(q.Tier), base, tags)
		}
	}
	fmt.Println()

	// Detailed sections per domain
	fmt.Println("---")
	fmt.Println()
	for _, group := range groups {
		fmt.Printf("## Domain: %s\n", group.Name)
		fmt.Println()
		for _, q := range group.Questions {
			printQuestionDetails(q)
		}
	}

	// Tag index
	fmt.Println("---")
	fmt.Println()
	fmt.Println("## Tag Index")
	fmt.Println()
	fmt.Println("This index maps tags to the questions carrying them. Tags drive the")
	fmt.Println("`--tag` filter of the run command.")
	fmt.Println()

	tagIndex := buildTagIndex(all)
	fmt.Println("| Tag | Questions |")
	fmt.Println("|-----|-----------|")
	for _, tag := range sortedKeys(tagIndex) {
		fmt.Printf("| `%s` | %s |\n", tag, strings.Join(tagIndex[tag], ", "))
	}
	fmt.Println()

	// Footer
	fmt.Println("---")
	fmt.Println()
	fmt.Printf("*This document is auto-generated from `%s`.*\n", path)
	fmt.Println()
	fmt.Printf("*To regenerate: `go run scripts/generate_question_docs.go %s > docs/question_reference.md`*\n", path)
}

// printQuestionDetails prints detailed information for a single question.
func printQuestionDetails(q QuestionYAML) {
	fmt.Printf("### `%s`\n", q.ID)
	fmt.Println()
	fmt.Printf("> %s\n", q.Text)
	fmt.Println()

	fmt.Println("| Property | Value |")
	fmt.Println("|----------|-------|")
	if q.Complexity != "" {
		fmt.Printf("| **Complexity** | %s |\n", q.Complexity)
	}
	if q.Tier != "" {
		fmt.Printf("| **Schema Tier** | %s |\n", q.Tier)
	}
	if q.BaseID != "" {
		fmt.Printf("| **Variant Of** | `%s` |\n", q.BaseID)
	}
	if len(q.GoldenSQL) > 0 {
		fmt.Printf("| **Golden Dialects** | %s |\n", strings.Join(sortedKeys(q.GoldenSQL), ", "))
	}
	fmt.Println()

	if len(q.Tags) > 0 {
		fmt.Println("**Tags:**")
		fmt.Println()
		fmt.Print("`")
		fmt.Print(strings.Join(q.Tags, "`, `"))
		fmt.Println("`")
		fmt.Println()
	}
}

// buildTagIndex creates a map of tag -> question ids.
func buildTagIndex(questions []QuestionYAML) map[string][]string {
	index := make(map[string][]string)
	for _, q := range questions {
		for _, tag := range q.Tags {
			index[tag] = append(index[tag], fmt.Sprintf("`%s`", q.ID))
		}
	}
	return index
}

// sortedKeys returns the map's keys in sorted order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// orDash substitutes "-" for empty table cells.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
