// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package e2e

import (
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	out, code := runCLI(t, t.TempDir(), "version")
	if code != 0 {
		t.Fatalf("version exited %d: %s", code, out)
	}
	if !strings.Contains(out, "nlqbench") {
		t.Errorf("version output missing binary name: %s", out)
	}
}

func TestCompareMatchingResults(t *testing.T) {
	dir := t.TempDir()
	golden := writeFile(t, dir, "golden.json", `{
  "columns": [{"name": "name", "type": "string"}, {"name": "spent", "type": "float"}],
  "rows": [["Ada", 160.5], ["Grace", 80.0]]
}`)
	actual := writeFile(t, dir, "actual.json", `{
  "columns": [{"name": "name", "type": "string"}, {"name": "spent", "type": "float"}],
  "rows": [["Ada", 160.5000001], ["Grace", 80.0]]
}`)

	out, code := runCLI(t, dir, "compare", golden, actual)
	if code != 0 {
		t.Fatalf("compare of equivalent results exited %d: %s", code, out)
	}
}

func TestCompareMismatchedResults(t *testing.T) {
	dir := t.TempDir()
	golden := writeFile(t, dir, "golden.json", `{
  "columns": [{"name": "n", "type": "integer"}],
  "rows": [[1], [2]]
}`)
	actual := writeFile(t, dir, "actual.json", `{
  "columns": [{"name": "n", "type": "integer"}],
  "rows": [[1], [3]]
}`)

	out, code := runCLI(t, dir, "compare", golden, actual)
	if code != 1 {
		t.Fatalf("compare of differing results exited %d, want 1: %s", code, out)
	}
}

func TestMissingConfigExitsTwo(t *testing.T) {
	out, code := runCLI(t, t.TempDir(), "run", "--config", "does-not-exist.yaml")
	if code != 2 {
		t.Fatalf("run with missing config exited %d, want 2: %s", code, out)
	}
}
