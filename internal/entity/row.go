package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Row is a projection of one source record: column name -> scalar. As a Go
// map it does not keep the source column order.
// Values are restricted to the closed union
// nil | bool | int64 | decimal.Decimal | string | time.Time.
// The SQL gateway is the only place that converts to and from driver types.
type Row map[string]any

// Clone returns a shallow copy of the row. Scalar values are immutable, so a
// shallow copy is sufficient for per-row rewriting.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// MergeKey builds the deduplication key from the given fields. Field values
// are rendered canonically and joined so that two rows with the same
// identity always produce the same key.
func (r Row) MergeKey(fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, CanonicalString(r[f]))
	}
	return strings.Join(parts, "|")
}

// CanonicalString renders a scalar union value into a stable string form.
// Numeric values canonicalize by normalized decimal value, so a destination
// column read back as "2.00" matches a source value of 2.
func CanonicalString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		if val {
			return "1"
		}
		return "0"
	case int64:
		return fmt.Sprintf("%d", val)
	case int:
		return fmt.Sprintf("%d", val)
	case decimal.Decimal:
		return val.String()
	case string:
		s := strings.TrimSpace(val)
		if strings.Contains(s, ".") {
			if d, err := decimal.NewFromString(s); err == nil {
				return d.String()
			}
		}
		return s
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", val)
	}
}
