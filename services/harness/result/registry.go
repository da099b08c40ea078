// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package result

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Comparison Registry
// =============================================================================

// CompareFunc grades one non-NULL cell pair under a rule set.
//
// Both values are guaranteed non-nil; NULL logic runs before dispatch.
// The returned detail is empty on a match and describes the difference on
// a mismatch.
//
// Thread Safety: implementations must be pure; they may run concurrently.
type CompareFunc func(a, b Value, rules RuleSet) (match bool, detail string)

// Registry maps semantic types to their comparison functions.
//
// New semantic types are supported by registering a handler; existing
// comparison logic is never touched. The zero Registry is empty; most
// callers want DefaultRegistry.
//
// Thread Safety: safe for concurrent use. Registration typically happens
// once at startup.
type Registry struct {
	mu    sync.RWMutex
	funcs map[SemanticType]CompareFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[SemanticType]CompareFunc)}
}

// DefaultRegistry returns a registry preloaded with handlers for every
// built-in semantic type.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.funcs[TypeInteger] = compareIntegerCell
	r.funcs[TypeFloat] = compareNumericCell(TypeFloat)
	r.funcs[TypeDecimal] = compareNumericCell(TypeDecimal)
	r.funcs[TypeString] = compareStringCell
	r.funcs[TypeBoolean] = compareExactCell
	r.funcs[TypeDate] = compareDatetimeCell
	r.funcs[TypeDatetime] = compareDatetimeCell
	r.funcs[TypeUnknown] = compareExactCell
	return r
}

// Register adds a handler for a semantic type.
//
// Outputs:
//
//	error - wraps ErrComparatorExists if the type already has a handler.
//	        Use Replace to override deliberately.
func (r *Registry) Register(t SemanticType, fn CompareFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funcs[t]; ok {
		return fmt.Errorf("%w: %s", ErrComparatorExists, t)
	}
	r.funcs[t] = fn
	return nil
}

// Replace installs a handler, overwriting any existing one.
func (r *Registry) Replace(t SemanticType, fn CompareFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[t] = fn
}

// lookup returns the handler for a type, falling back to exact equality.
func (r *Registry) lookup(t SemanticType) CompareFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.funcs[t]; ok {
		return fn
	}
	return compareExactCell
}

// =============================================================================
// Built-in Handlers
// =============================================================================

// compareIntegerCell grades integer columns exactly when both sides are
// integral, and falls back to tolerance math when a compatible numeric
// backend returned a float or decimal for the same column.
func compareIntegerCell(a, b Value, rules RuleSet) (bool, string) {
	ai, aOK := a.(int64)
	bi, bOK := b.(int64)
	if aOK && bOK {
		if ai == bi {
			return true, ""
		}
		return false, fmt.Sprintf("%d != %d", ai, bi)
	}
	return compareNumericCell(TypeFloat)(a, b, rules)
}

// compareNumericCell builds the tolerance comparator for a numeric type.
// The type parameter selects per-type tolerance overrides (decimals often
// carry a coarser tolerance than floats).
func compareNumericCell(t SemanticType) CompareFunc {
	return func(a, b Value, rules RuleSet) (bool, string) {
		af, aOK := toFloat(a)
		bf, bOK := toFloat(b)
		if !aOK || !bOK {
			return false, fmt.Sprintf("non-numeric cell: %v vs %v", a, b)
		}

		// Exact zero on both sides short-circuits: relative error is
		// undefined there and the values are unarguably equal.
		if af == 0 && bf == 0 {
			return true, ""
		}

		tol, mode := rules.toleranceFor(t)
		diff := math.Abs(af - bf)
		switch mode {
		case FloatAbsolute:
			if diff <= tol {
				return true, ""
			}
			return false, fmt.Sprintf("|%v - %v| = %v exceeds absolute tolerance %v", af, bf, diff, tol)
		default:
			denom := math.Max(math.Abs(af), math.Abs(bf))
			if denom < relativeEps {
				denom = relativeEps
			}
			rel := diff / denom
			if rel <= tol {
				return true, ""
			}
			return false, fmt.Sprintf("relative error %v between %v and %v exceeds tolerance %v", rel, af, bf, tol)
		}
	}
}

// compareStringCell grades strings after applying the configured
// normalization to both sides.
func compareStringCell(a, b Value, rules RuleSet) (bool, string) {
	as, aOK := a.(string)
	bs, bOK := b.(string)
	if !aOK || !bOK {
		return compareExactCell(a, b, rules)
	}
	as = normalizeString(as, rules.StringNorm)
	bs = normalizeString(bs, rules.StringNorm)
	if as == bs {
		return true, ""
	}
	return false, fmt.Sprintf("%q != %q", as, bs)
}

func normalizeString(s string, norm StringNorm) string {
	switch norm {
	case NormTrim:
		return strings.TrimSpace(s)
	case NormLowercaseTrim:
		return strings.ToLower(strings.TrimSpace(s))
	default:
		return s
	}
}

// compareDatetimeCell grades timestamps by absolute difference after
// normalizing both instants to the rule set's reference timezone.
func compareDatetimeCell(a, b Value, rules RuleSet) (bool, string) {
	at, aOK := toTime(a, rules.Location)
	bt, bOK := toTime(b, rules.Location)
	if !aOK || !bOK {
		return false, fmt.Sprintf("non-temporal cell: %v vs %v", a, b)
	}
	diff := at.Sub(bt)
	if diff < 0 {
		diff = -diff
	}
	if diff.Milliseconds() <= rules.DatetimeToleranceMs {
		return true, ""
	}
	return false, fmt.Sprintf("timestamps differ by %v (tolerance %dms): %s vs %s",
		diff, rules.DatetimeToleranceMs,
		at.Format(time.RFC3339Nano), bt.Format(time.RFC3339Nano))
}

// compareExactCell is the fallback for booleans, unknown types and
// mixed-type cells: exact equality on the rendered form.
func compareExactCell(a, b Value, _ RuleSet) (bool, string) {
	if a == b {
		return true, ""
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	if as == bs {
		return true, ""
	}
	return false, fmt.Sprintf("%v != %v", a, b)
}

// =============================================================================
// Cell Coercion
// =============================================================================

func toFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func toTime(v Value, loc *time.Location) (time.Time, bool) {
	switch ts := v.(type) {
	case time.Time:
		return ts.In(loc), true
	case string:
		if parsed, ok := parseTimeString(ts); ok {
			return parsed.In(loc), true
		}
	}
	return time.Time{}, false
}

// isEmptyEquivalent reports whether a non-NULL cell counts as NULL under
// lenient handling: the empty/zero value for its column type.
func isEmptyEquivalent(v Value, t SemanticType, rules RuleSet) bool {
	switch t {
	case TypeString:
		s, ok := v.(string)
		return ok && normalizeString(s, rules.StringNorm) == ""
	case TypeInteger:
		if i, ok := v.(int64); ok {
			return i == 0
		}
		f, ok := toFloat(v)
		return ok && f == 0
	case TypeFloat, TypeDecimal:
		f, ok := toFloat(v)
		return ok && f == 0
	case TypeBoolean:
		b, ok := v.(bool)
		return ok && !b
	default:
		return false
	}
}
