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
	"strings"
	"time"
)

// =============================================================================
// Rule Enums
// =============================================================================

// FloatMode selects how numeric tolerance is interpreted.
type FloatMode int

const (
	// FloatRelative compares |a-b| / max(|a|,|b|,eps) against the tolerance.
	FloatRelative FloatMode = iota

	// FloatAbsolute compares |a-b| against the tolerance directly.
	FloatAbsolute
)

// String returns the mode name used in configuration files.
func (m FloatMode) String() string {
	switch m {
	case FloatRelative:
		return "relative"
	case FloatAbsolute:
		return "absolute"
	default:
		return fmt.Sprintf("FloatMode(%d)", int(m))
	}
}

// ParseFloatMode maps a mode name to its FloatMode, defaulting to relative.
func ParseFloatMode(s string) FloatMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "absolute", "absolute-error", "abs":
		return FloatAbsolute
	default:
		return FloatRelative
	}
}

// StringNorm selects the normalization applied to both sides of a string
// comparison.
type StringNorm int

const (
	// NormNone compares strings byte-for-byte.
	NormNone StringNorm = iota

	// NormTrim strips leading and trailing whitespace first.
	NormTrim

	// NormLowercaseTrim lowercases after trimming; use for case-insensitive
	// backends.
	NormLowercaseTrim
)

// String returns the normalization name used in configuration files.
func (n StringNorm) String() string {
	switch n {
	case NormNone:
		return "none"
	case NormTrim:
		return "trim"
	case NormLowercaseTrim:
		return "lowercase-trim"
	default:
		return fmt.Sprintf("StringNorm(%d)", int(n))
	}
}

// ParseStringNorm maps a normalization name to its StringNorm, defaulting
// to trim.
func ParseStringNorm(s string) StringNorm {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return NormNone
	case "lowercase-trim", "lowercase_trim", "lower":
		return NormLowercaseTrim
	default:
		return NormTrim
	}
}

// NullHandling selects how NULL-vs-value pairs are graded.
type NullHandling int

const (
	// NullStrict treats NULL as equal only to NULL.
	NullStrict NullHandling = iota

	// NullLenient additionally accepts the type's empty/zero value
	// ("" for strings, 0 for numerics, false for booleans) as NULL.
	NullLenient
)

// String returns the handling name used in configuration files.
func (h NullHandling) String() string {
	switch h {
	case NullStrict:
		return "strict"
	case NullLenient:
		return "lenient"
	default:
		return fmt.Sprintf("NullHandling(%d)", int(h))
	}
}

// ParseNullHandling maps a handling name to its NullHandling, defaulting
// to strict.
func ParseNullHandling(s string) NullHandling {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lenient":
		return NullLenient
	default:
		return NullStrict
	}
}

// =============================================================================
// Rule Set
// =============================================================================

// TypeOverride carries per-semantic-type deviations from the generic rules.
// Pointer fields distinguish "unset" from an explicit zero.
type TypeOverride struct {
	// Tolerance overrides the numeric tolerance for this type. Decimal
	// columns commonly carry a coarser tolerance than generic floats.
	Tolerance *float64 `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`

	// Mode overrides the float comparison mode for this type.
	Mode *FloatMode `json:"mode,omitempty" yaml:"mode,omitempty"`
}

// RuleSet is the fully resolved configuration governing one comparison.
//
// A RuleSet is immutable by convention: it is produced once by Resolve (or
// DefaultRules) and then only read. The comparator never mutates it, so a
// single RuleSet may serve concurrent comparisons.
type RuleSet struct {
	// RowOrderMatters disables canonical row sorting when true.
	RowOrderMatters bool `json:"row_order_matters" yaml:"row_order_matters"`

	// ColumnOrderMatters requires positional column agreement when true;
	// otherwise columns pair by name.
	ColumnOrderMatters bool `json:"column_order_matters" yaml:"column_order_matters"`

	// FloatTolerance bounds the accepted numeric difference. The boundary
	// is inclusive: a difference equal to the tolerance still matches.
	FloatTolerance float64 `json:"float_tolerance" yaml:"float_tolerance"`

	// FloatMode selects relative or absolute tolerance math.
	FloatMode FloatMode `json:"float_comparison_mode" yaml:"float_comparison_mode"`

	// StringNorm is applied to both sides before string equality.
	StringNorm StringNorm `json:"string_normalization" yaml:"string_normalization"`

	// NullHandling selects strict or lenient NULL grading.
	NullHandling NullHandling `json:"null_handling" yaml:"null_handling"`

	// DatetimeToleranceMs bounds the accepted timestamp difference in
	// milliseconds after timezone normalization.
	DatetimeToleranceMs int64 `json:"datetime_tolerance_ms" yaml:"datetime_tolerance_ms"`

	// Location is the reference timezone datetimes are normalized to.
	// Resolve defaults it to UTC; a nil Location fails Validate.
	Location *time.Location `json:"-" yaml:"-"`

	// TypeOverrides keys per-type deviations by semantic type.
	TypeOverrides map[SemanticType]TypeOverride `json:"type_overrides,omitempty" yaml:"type_overrides,omitempty"`

	// resolved is set by Resolve/DefaultRules so Validate can tell a
	// deliberately built rule set from an uninitialized zero value.
	resolved bool
}

// relativeEps is the denominator floor for relative-error comparison,
// keeping the math defined when both sides are near zero.
const relativeEps = 1e-12

// DefaultRules returns the global default rule set.
//
// Defaults favor strictness: order-sensitive rows and columns, 1e-6
// relative float tolerance, trimmed strings, strict NULLs, exact
// datetimes normalized to UTC.
func DefaultRules() RuleSet {
	return RuleSet{
		RowOrderMatters:     true,
		ColumnOrderMatters:  true,
		FloatTolerance:      1e-6,
		FloatMode:           FloatRelative,
		StringNorm:          NormTrim,
		NullHandling:        NullStrict,
		DatetimeToleranceMs: 0,
		Location:            time.UTC,
		resolved:            true,
	}
}

// Validate checks that the rule set is fully resolved and in range.
//
// Outputs:
//
//	error - wraps ErrUnresolvedRules naming the offending field, or nil.
func (r RuleSet) Validate() error {
	if !r.resolved {
		return fmt.Errorf("%w: built without Resolve or DefaultRules", ErrUnresolvedRules)
	}
	if r.FloatTolerance < 0 {
		return fmt.Errorf("%w: float_tolerance %v is negative", ErrUnresolvedRules, r.FloatTolerance)
	}
	if r.DatetimeToleranceMs < 0 {
		return fmt.Errorf("%w: datetime_tolerance_ms %d is negative", ErrUnresolvedRules, r.DatetimeToleranceMs)
	}
	if r.Location == nil {
		return fmt.Errorf("%w: reference timezone unset", ErrUnresolvedRules)
	}
	for t, ov := range r.TypeOverrides {
		if ov.Tolerance != nil && *ov.Tolerance < 0 {
			return fmt.Errorf("%w: %s tolerance %v is negative", ErrUnresolvedRules, t, *ov.Tolerance)
		}
	}
	return nil
}

// toleranceFor returns the tolerance and mode for a semantic type,
// honoring per-type overrides.
func (r RuleSet) toleranceFor(t SemanticType) (float64, FloatMode) {
	tol, mode := r.FloatTolerance, r.FloatMode
	if ov, ok := r.TypeOverrides[t]; ok {
		if ov.Tolerance != nil {
			tol = *ov.Tolerance
		}
		if ov.Mode != nil {
			mode = *ov.Mode
		}
	}
	return tol, mode
}

// =============================================================================
// Overlay Resolution
// =============================================================================

// Overlay is a partial rule set used for layered configuration. Nil fields
// inherit from the layer below.
//
// Layers are applied in increasing priority: global defaults, then the
// database-specific overlay, then the per-question overlay.
type Overlay struct {
	RowOrderMatters     *bool   `json:"row_order_matters,omitempty" yaml:"row_order_matters,omitempty"`
	ColumnOrderMatters  *bool   `json:"column_order_matters,omitempty" yaml:"column_order_matters,omitempty"`
	FloatTolerance      *float64 `json:"float_tolerance,omitempty" yaml:"float_tolerance,omitempty"`
	FloatMode           *string `json:"float_comparison_mode,omitempty" yaml:"float_comparison_mode,omitempty"`
	StringNorm          *string `json:"string_normalization,omitempty" yaml:"string_normalization,omitempty"`
	NullHandling        *string `json:"null_handling,omitempty" yaml:"null_handling,omitempty"`
	DatetimeToleranceMs *int64  `json:"datetime_tolerance_ms,omitempty" yaml:"datetime_tolerance_ms,omitempty"`
	Timezone            *string `json:"timezone,omitempty" yaml:"timezone,omitempty"`

	// TypeOverrides merge key-by-key; an overlay entry replaces the whole
	// entry for that type.
	TypeOverrides map[string]TypeOverride `json:"type_overrides,omitempty" yaml:"type_overrides,omitempty"`
}

// Resolve merges overlays onto a base rule set, later overlays winning.
//
// Description:
//
//	Produces the immutable RuleSet the comparator consumes. The base is
//	copied, never mutated, so callers may share one base across many
//	resolutions (global -> per-database -> per-question).
//
// Inputs:
//
//	base - a resolved rule set, usually DefaultRules().
//	overlays - partial layers in increasing priority; nils are skipped.
//
// Outputs:
//
//	RuleSet - the merged rule set.
//	error - wraps ErrUnresolvedRules on bad timezone names or ranges.
func Resolve(base RuleSet, overlays ...*Overlay) (RuleSet, error) {
	merged := base
	merged.resolved = true
	if merged.Location == nil {
		merged.Location = time.UTC
	}

	// Copy the override map so layering never aliases the base's map.
	if base.TypeOverrides != nil {
		merged.TypeOverrides = make(map[SemanticType]TypeOverride, len(base.TypeOverrides))
		for k, v := range base.TypeOverrides {
			merged.TypeOverrides[k] = v
		}
	}

	for _, ov := range overlays {
		if ov == nil {
			continue
		}
		if ov.RowOrderMatters != nil {
			merged.RowOrderMatters = *ov.RowOrderMatters
		}
		if ov.ColumnOrderMatters != nil {
			merged.ColumnOrderMatters = *ov.ColumnOrderMatters
		}
		if ov.FloatTolerance != nil {
			merged.FloatTolerance = *ov.FloatTolerance
		}
		if ov.FloatMode != nil {
			merged.FloatMode = ParseFloatMode(*ov.FloatMode)
		}
		if ov.StringNorm != nil {
			merged.StringNorm = ParseStringNorm(*ov.StringNorm)
		}
		if ov.NullHandling != nil {
			merged.NullHandling = ParseNullHandling(*ov.NullHandling)
		}
		if ov.DatetimeToleranceMs != nil {
			merged.DatetimeToleranceMs = *ov.DatetimeToleranceMs
		}
		if ov.Timezone != nil {
			loc, err := time.LoadLocation(*ov.Timezone)
			if err != nil {
				return RuleSet{}, fmt.Errorf("%w: timezone %q: %v", ErrUnresolvedRules, *ov.Timezone, err)
			}
			merged.Location = loc
		}
		for name, to := range ov.TypeOverrides {
			if merged.TypeOverrides == nil {
				merged.TypeOverrides = make(map[SemanticType]TypeOverride)
			}
			merged.TypeOverrides[ParseSemanticType(name)] = to
		}
	}

	if err := merged.Validate(); err != nil {
		return RuleSet{}, err
	}
	return merged, nil
}
