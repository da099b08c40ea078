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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/nlqbench/pkg/ux"
	"github.com/AleutianAI/nlqbench/services/harness/result"
)

// runCompare feeds two serialized tabular results through the semantic
// comparator and reports the verdict. Exit code 1 on a mismatch.
func runCompare(_ *cobra.Command, args []string) error {
	golden, err := readTabular(args[0])
	if err != nil {
		return err
	}
	actual, err := readTabular(args[1])
	if err != nil {
		return err
	}

	rules, err := rulesFromFlags()
	if err != nil {
		return err
	}

	verdict, err := result.Compare(golden, actual, rules)
	if err != nil {
		return fmt.Errorf("compare: %w", err)
	}

	if verdict.Match {
		ux.Success(verdict.Reason)
		return nil
	}
	if verdict.Location != nil {
		ux.Error(fmt.Sprintf("%s (row %d, column %s)",
			verdict.Reason, verdict.Location.Row, verdict.Location.Column))
	} else {
		ux.Error(verdict.Reason)
	}
	return errFailuresPresent
}

// readTabular loads one result file: {"columns": [...], "rows": [...]}.
func readTabular(path string) (result.Tabular, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return result.Tabular{}, fmt.Errorf("read result file: %w", err)
	}
	var tab result.Tabular
	if err := json.Unmarshal(data, &tab); err != nil {
		return result.Tabular{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := tab.Validate(); err != nil {
		return result.Tabular{}, fmt.Errorf("%s: %w", path, err)
	}
	return tab, nil
}

// rulesFromFlags overlays the compare flags onto the default rule set.
func rulesFromFlags() (result.RuleSet, error) {
	rules := result.DefaultRules()
	rules.RowOrderMatters = rowOrderMatters
	rules.ColumnOrderMatters = colOrderMatters
	rules.FloatTolerance = floatTolerance
	rules.DatetimeToleranceMs = datetimeTolMs
	rules.FloatMode = result.ParseFloatMode(floatMode)
	rules.StringNorm = result.ParseStringNorm(stringNorm)
	rules.NullHandling = result.ParseNullHandling(nullHandling)
	if err := rules.Validate(); err != nil {
		return result.RuleSet{}, err
	}
	return rules, nil
}
