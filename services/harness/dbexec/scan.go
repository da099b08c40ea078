// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dbexec

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/nlqbench/services/harness/result"
)

// scanRows drains a result set into the comparator's tabular form.
//
// Description:
//
//	Column semantic types come from the driver's declared type names,
//	collapsed through semanticType. Cells are scanned through `any`
//	and normalized so the comparator only ever sees nil, int64,
//	float64, string, bool, or time.Time.
func scanRows(rows *sql.Rows) (result.Tabular, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return result.Tabular{}, fmt.Errorf("read column types: %w", err)
	}

	cols := make([]result.Column, len(colTypes))
	for i, ct := range colTypes {
		cols[i] = result.Column{
			Name: ct.Name(),
			Type: semanticType(ct.DatabaseTypeName()),
		}
	}

	var out []result.Row
	for rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return result.Tabular{}, fmt.Errorf("scan row %d: %w", len(out), err)
		}

		row := make(result.Row, len(cols))
		for i, cell := range cells {
			row[i] = normalizeCell(cell)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return result.Tabular{}, fmt.Errorf("iterate rows: %w", err)
	}

	return result.Tabular{Columns: cols, Rows: out}, nil
}

// normalizeCell collapses driver value variants onto the comparator's
// cell vocabulary. NULL stays nil.
func normalizeCell(v any) result.Value {
	switch cell := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(cell)
	case int:
		return int64(cell)
	case int32:
		return int64(cell)
	case int64:
		return cell
	case uint64:
		return int64(cell)
	case float32:
		return float64(cell)
	case float64:
		return cell
	case bool:
		return cell
	case string:
		return cell
	case time.Time:
		return cell
	default:
		// Exotic driver types (duckdb intervals, lists) fall back to
		// their string form and compare as text.
		return fmt.Sprintf("%v", cell)
	}
}

// semanticType maps a declared database type name onto the comparison
// type system. Parameterized names like DECIMAL(10,2) match on their
// base name; unknown names compare as loosely-typed.
func semanticType(dbType string) result.SemanticType {
	name := strings.ToUpper(strings.TrimSpace(dbType))
	if idx := strings.IndexByte(name, '('); idx >= 0 {
		name = strings.TrimSpace(name[:idx])
	}

	switch name {
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "MEDIUMINT",
		"INT2", "INT4", "INT8", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT",
		"UNSIGNED BIG INT", "SERIAL":
		return result.TypeInteger
	case "REAL", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DOUBLE PRECISION":
		return result.TypeFloat
	case "DECIMAL", "NUMERIC", "MONEY":
		return result.TypeDecimal
	case "TEXT", "VARCHAR", "CHAR", "CHARACTER", "NCHAR", "NVARCHAR",
		"CLOB", "STRING", "UUID", "ENUM":
		return result.TypeString
	case "BOOLEAN", "BOOL", "BIT", "LOGICAL":
		return result.TypeBoolean
	case "DATE":
		return result.TypeDate
	case "DATETIME", "TIMESTAMP", "TIMESTAMPTZ",
		"TIMESTAMP WITH TIME ZONE", "TIMESTAMP_S", "TIMESTAMP_MS", "TIMESTAMP_NS":
		return result.TypeDatetime
	default:
		return result.TypeUnknown
	}
}
