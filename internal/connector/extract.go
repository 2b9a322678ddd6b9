package connector

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// field is one named value from a query result row or a JSON document, in
// source order.
type field struct {
	name  string
	value any
}

// timestampLayouts are tried in order when a timestamp arrives as text.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// extractMetrics maps a result row onto the snapshot metrics. The row count
// is mandatory: it comes from a column named row_count or count, else the
// first column whose name contains "count". latest_timestamp follows the
// same pattern with max_timestamp and *time* fallbacks. Every other numeric
// field is kept verbatim under its own name.
func extractMetrics(fields []field) (map[string]any, error) {
	rowCountCol, ok := findColumn(fields, "row_count", "count", "count")
	if !ok {
		return nil, &Error{
			Code:    CodeValidation,
			Message: "query result has no row count column (expected row_count, count, or *count*)",
		}
	}

	metrics := make(map[string]any, len(fields))

	count, err := toInt64(fields[rowCountCol].value)
	if err != nil {
		return nil, &Error{
			Code:    CodeValidation,
			Message: fmt.Sprintf("column %q is not numeric: %v", fields[rowCountCol].name, err),
		}
	}
	if count < 0 {
		return nil, &Error{
			Code:    CodeValidation,
			Message: fmt.Sprintf("column %q is negative (%d)", fields[rowCountCol].name, count),
		}
	}
	metrics["row_count"] = count

	tsCol := -1
	if i, ok := findColumn(fields, "latest_timestamp", "max_timestamp", "time"); ok && i != rowCountCol {
		if ts, ok := toTime(fields[i].value); ok {
			metrics["latest_timestamp"] = ts.UTC()
			tsCol = i
		}
	}

	for i, f := range fields {
		if i == rowCountCol || i == tsCol {
			continue
		}
		if n, err := toFloat64(f.value); err == nil {
			metrics[f.name] = n
		}
	}
	return metrics, nil
}

// findColumn returns the index of the first field matching one of the exact
// names, else the first whose lowercased name contains substr.
func findColumn(fields []field, exact1, exact2, substr string) (int, bool) {
	for i, f := range fields {
		name := strings.ToLower(f.name)
		if name == exact1 || name == exact2 {
			return i, true
		}
	}
	for i, f := range fields {
		if strings.Contains(strings.ToLower(f.name), substr) {
			return i, true
		}
	}
	return 0, false
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	case nil:
		return 0, fmt.Errorf("value is NULL")
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case []byte:
		return strconv.ParseFloat(string(n), 64)
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case []byte:
		return parseTimestamp(string(t))
	case string:
		return parseTimestamp(t)
	}
	return time.Time{}, false
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
