// Package validation implements per-field type coercion, constraint checks
// and null normalization for rows headed to the destination table.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/heriberto777/core-app-sub000/internal/entity"
)

// Options control validation behavior for a whole row. Per-field rule flags
// are OR'd with the matching global option.
type Options struct {
	ThrowOnFirstError bool // return on first failure instead of collecting
	AllowExtraFields  bool // retain unschema'd fields after sanitizing
	AutoConvert       bool // coerce types where unambiguous
	Truncate          bool // cut strings to maxLength instead of failing
	Clamp             bool // bound numbers to [min,max] instead of failing
	Round             bool // round to integer instead of failing the integer rule
	Trim              bool
	Uppercase         bool
	Lowercase         bool
	Precision         int // decimal places for numeric rounding, 0 = untouched
}

// FieldError is one validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors collects validation failures for a row.
type Errors []FieldError

// Error implements the error interface.
func (e Errors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// patternCache memoizes compiled rule regexes.
var patternCache sync.Map

func compiledPattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}

// ValidateRow validates and sanitizes one row against the ruleset. On
// success it returns a new row containing the schema'd fields (plus extras
// when AllowExtraFields); on failure it returns the collected field errors.
func ValidateRow(row entity.Row, rs *entity.ValidationRuleset, opts Options) (entity.Row, error) {
	out := make(entity.Row, len(row))
	var errs Errors

	fail := func(field, message string) error {
		errs = append(errs, FieldError{Field: field, Message: message})
		if opts.ThrowOnFirstError {
			return errs
		}
		return nil
	}

	for field, rule := range rs.Fields {
		value := Sanitize(row[field])

		if value == nil {
			if rule.Required {
				if err := fail(field, "required field is null"); err != nil {
					return nil, err
				}
			}
			out[field] = nil
			continue
		}

		converted, msg := applyRule(value, rule, opts)
		if msg != "" {
			if err := fail(field, msg); err != nil {
				return nil, err
			}
			continue
		}
		out[field] = converted
	}

	if opts.AllowExtraFields {
		for field, value := range row {
			if _, ok := rs.Fields[field]; ok {
				continue
			}
			out[field] = Sanitize(value)
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

// applyRule coerces and checks a single non-null value. Returns the final
// value, or a failure message.
func applyRule(value any, rule entity.FieldRule, opts Options) (any, string) {
	switch rule.Type {
	case entity.FieldString:
		return applyStringRule(value, rule, opts)
	case entity.FieldNumber:
		return applyNumberRule(value, rule, opts)
	case entity.FieldDate:
		return applyDateRule(value, opts)
	case entity.FieldBoolean:
		return applyBoolRule(value, opts)
	}
	return nil, fmt.Sprintf("unknown rule type %q", rule.Type)
}

func applyStringRule(value any, rule entity.FieldRule, opts Options) (any, string) {
	str, ok := value.(string)
	if !ok {
		if !opts.AutoConvert {
			return nil, fmt.Sprintf("expected string, got %T", value)
		}
		str = entity.CanonicalString(value)
	}

	if rule.Trim || opts.Trim {
		str = strings.TrimSpace(str)
	}
	switch {
	case rule.Uppercase || opts.Uppercase:
		str = strings.ToUpper(str)
	case rule.Lowercase || opts.Lowercase:
		str = strings.ToLower(str)
	}

	if str == "" {
		if rule.Required {
			return nil, "required field is empty"
		}
		return nil, ""
	}

	runes := []rune(str)
	if rule.MinLength > 0 && len(runes) < rule.MinLength {
		return nil, fmt.Sprintf("shorter than minimum length %d", rule.MinLength)
	}
	if rule.MaxLength > 0 && len(runes) > rule.MaxLength {
		if rule.Truncate || opts.Truncate {
			str = string(runes[:rule.MaxLength])
		} else {
			return nil, fmt.Sprintf("longer than maximum length %d", rule.MaxLength)
		}
	}

	if rule.Pattern != "" {
		re, err := compiledPattern(rule.Pattern)
		if err != nil {
			return nil, fmt.Sprintf("invalid pattern: %v", err)
		}
		if !re.MatchString(str) {
			return nil, fmt.Sprintf("does not match pattern %s", rule.Pattern)
		}
	}

	return str, ""
}

func applyNumberRule(value any, rule entity.FieldRule, opts Options) (any, string) {
	num, ok := toDecimal(value, opts.AutoConvert)
	if !ok {
		return nil, fmt.Sprintf("expected number, got %T", value)
	}

	minV, maxV := rule.Min, rule.Max
	if minV != nil && num.LessThan(decimal.NewFromFloat(*minV)) {
		if rule.Clamp || opts.Clamp {
			num = decimal.NewFromFloat(*minV)
		} else {
			return nil, fmt.Sprintf("below minimum %v", *minV)
		}
	}
	if maxV != nil && num.GreaterThan(decimal.NewFromFloat(*maxV)) {
		if rule.Clamp || opts.Clamp {
			num = decimal.NewFromFloat(*maxV)
		} else {
			return nil, fmt.Sprintf("above maximum %v", *maxV)
		}
	}

	if rule.Integer {
		if !num.IsInteger() {
			if rule.Round || opts.Round {
				num = num.Round(0)
			} else {
				return nil, "expected an integer value"
			}
		}
		return num.IntPart(), ""
	}

	precision := rule.Precision
	if precision == 0 {
		precision = opts.Precision
	}
	if precision > 0 {
		num = num.Round(int32(precision))
	}
	return num, ""
}

func toDecimal(value any, autoConvert bool) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, true
	case int64:
		return decimal.NewFromInt(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case string:
		if !autoConvert {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case bool:
		if !autoConvert {
			return decimal.Zero, false
		}
		if v {
			return decimal.NewFromInt(1), true
		}
		return decimal.Zero, true
	}
	return decimal.Zero, false
}

// dateLayouts are the accepted textual date forms for auto-conversion.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func applyDateRule(value any, opts Options) (any, string) {
	switch v := value.(type) {
	case time.Time:
		return v, ""
	case string:
		if !opts.AutoConvert {
			return nil, fmt.Sprintf("expected date, got %T", value)
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return t, ""
			}
		}
		return nil, fmt.Sprintf("cannot parse %q as date", v)
	}
	return nil, fmt.Sprintf("expected date, got %T", value)
}

func applyBoolRule(value any, opts Options) (any, string) {
	switch v := value.(type) {
	case bool:
		return v, ""
	case string:
		if !opts.AutoConvert {
			return nil, fmt.Sprintf("expected boolean, got %T", value)
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "y":
			return true, ""
		case "false", "0", "no", "n", "":
			return false, ""
		}
		return nil, fmt.Sprintf("cannot parse %q as boolean", v)
	case int64:
		if !opts.AutoConvert {
			return nil, fmt.Sprintf("expected boolean, got %T", value)
		}
		return v != 0, ""
	}
	return nil, fmt.Sprintf("expected boolean, got %T", value)
}

// Sanitize normalizes a scalar into the closed union. It is idempotent:
// Sanitize(Sanitize(x)) == Sanitize(x).
//
// Rules: empty and whitespace-only strings become null; NaN and infinities
// become null; zero dates and dates before the Unix epoch become null; structured values
// are serialized to JSON text.
func Sanitize(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return v
	case bool, int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return decimal.NewFromFloat(v)
	case float32:
		return Sanitize(float64(v))
	case decimal.Decimal:
		return v
	case time.Time:
		if v.IsZero() || v.Unix() < 0 {
			return nil
		}
		return v
	case []byte:
		return Sanitize(string(v))
	case json.Number:
		if d, err := decimal.NewFromString(v.String()); err == nil {
			return d
		}
		return nil
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ParseNumber exposes lenient numeric coercion for callers outside row
// validation, e.g. promotion field reads.
func ParseNumber(value any) (decimal.Decimal, bool) {
	v := Sanitize(value)
	if v == nil {
		return decimal.Zero, false
	}
	if s, ok := v.(string); ok {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
	return toDecimal(v, true)
}
