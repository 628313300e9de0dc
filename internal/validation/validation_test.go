package validation

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heriberto777/core-app-sub000/internal/entity"
)

func float(v float64) *float64 { return &v }

// TestSanitize validates null normalization across scalar types.
func TestSanitize(t *testing.T) {
	when := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		input    any
		expected any
	}{
		{"nil passes through", nil, nil},
		{"empty string becomes null", "", nil},
		{"whitespace-only string becomes null", "   \t ", nil},
		{"string passes through", "hello", "hello"},
		{"NaN becomes null", math.NaN(), nil},
		{"infinity becomes null", math.Inf(1), nil},
		{"float becomes decimal", 2.5, decimal.NewFromFloat(2.5)},
		{"int widens to int64", 7, int64(7)},
		{"zero time becomes null", time.Time{}, nil},
		{"valid time passes through", when, when},
		{"bytes become string", []byte("x"), "x"},
		{"map serialized to JSON", map[string]any{"a": float64(1)}, `{"a":1}`},
		{"slice serialized to JSON", []any{"a", "b"}, `["a","b"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Sanitize(tt.input))
		})
	}
}

// TestSanitizeIdempotent validates sanitize(sanitize(x)) == sanitize(x).
func TestSanitizeIdempotent(t *testing.T) {
	inputs := []any{
		nil, "", "  ", "text", math.NaN(), 3.14, 7, int64(9), true,
		time.Time{}, time.Now().UTC(), []byte("b"),
		map[string]any{"k": "v"}, []any{float64(1), float64(2)},
	}
	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once))
	}
}

func stringRules(rule entity.FieldRule) *entity.ValidationRuleset {
	return &entity.ValidationRuleset{
		Fields: map[string]entity.FieldRule{"name": rule},
	}
}

// TestValidateString validates string rules and post-processing.
func TestValidateString(t *testing.T) {
	t.Run("trim and uppercase", func(t *testing.T) {
		rs := stringRules(entity.FieldRule{Type: entity.FieldString, Trim: true, Uppercase: true})
		out, err := ValidateRow(entity.Row{"name": "  abc  "}, rs, Options{})
		require.NoError(t, err)
		assert.Equal(t, "ABC", out["name"])
	})

	t.Run("max length fails without truncate", func(t *testing.T) {
		rs := stringRules(entity.FieldRule{Type: entity.FieldString, MaxLength: 3})
		_, err := ValidateRow(entity.Row{"name": "abcdef"}, rs, Options{})
		require.Error(t, err)
	})

	t.Run("max length truncates when allowed", func(t *testing.T) {
		rs := stringRules(entity.FieldRule{Type: entity.FieldString, MaxLength: 3, Truncate: true})
		out, err := ValidateRow(entity.Row{"name": "abcdef"}, rs, Options{})
		require.NoError(t, err)
		assert.Equal(t, "abc", out["name"])
	})

	t.Run("pattern mismatch fails", func(t *testing.T) {
		rs := stringRules(entity.FieldRule{Type: entity.FieldString, Pattern: `^[A-Z]{2}\d+$`})
		_, err := ValidateRow(entity.Row{"name": "xx1"}, rs, Options{})
		require.Error(t, err)

		out, err := ValidateRow(entity.Row{"name": "AB12"}, rs, Options{})
		require.NoError(t, err)
		assert.Equal(t, "AB12", out["name"])
	})

	t.Run("number coerced to string with autoConvert", func(t *testing.T) {
		rs := stringRules(entity.FieldRule{Type: entity.FieldString})
		out, err := ValidateRow(entity.Row{"name": int64(42)}, rs, Options{AutoConvert: true})
		require.NoError(t, err)
		assert.Equal(t, "42", out["name"])
	})
}

func numberRules(rule entity.FieldRule) *entity.ValidationRuleset {
	return &entity.ValidationRuleset{
		Fields: map[string]entity.FieldRule{"qty": rule},
	}
}

// TestValidateNumber validates numeric rules: bounds, integer, precision.
func TestValidateNumber(t *testing.T) {
	t.Run("below min fails", func(t *testing.T) {
		rs := numberRules(entity.FieldRule{Type: entity.FieldNumber, Min: float(0)})
		_, err := ValidateRow(entity.Row{"qty": int64(-5)}, rs, Options{})
		require.Error(t, err)
	})

	t.Run("clamp bounds instead of failing", func(t *testing.T) {
		rs := numberRules(entity.FieldRule{Type: entity.FieldNumber, Min: float(0), Max: float(10), Clamp: true})
		out, err := ValidateRow(entity.Row{"qty": int64(-5)}, rs, Options{})
		require.NoError(t, err)
		assert.True(t, decimal.Zero.Equal(out["qty"].(decimal.Decimal)))

		out, err = ValidateRow(entity.Row{"qty": int64(99)}, rs, Options{})
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(10).Equal(out["qty"].(decimal.Decimal)))
	})

	t.Run("integer rule fails on fraction", func(t *testing.T) {
		rs := numberRules(entity.FieldRule{Type: entity.FieldNumber, Integer: true})
		_, err := ValidateRow(entity.Row{"qty": decimal.RequireFromString("1.5")}, rs, Options{})
		require.Error(t, err)
	})

	t.Run("round satisfies the integer rule", func(t *testing.T) {
		rs := numberRules(entity.FieldRule{Type: entity.FieldNumber, Integer: true, Round: true})
		out, err := ValidateRow(entity.Row{"qty": decimal.RequireFromString("1.5")}, rs, Options{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), out["qty"])
	})

	t.Run("precision rounds decimals", func(t *testing.T) {
		rs := numberRules(entity.FieldRule{Type: entity.FieldNumber, Precision: 2})
		out, err := ValidateRow(entity.Row{"qty": decimal.RequireFromString("1.237")}, rs, Options{})
		require.NoError(t, err)
		assert.Equal(t, "1.24", out["qty"].(decimal.Decimal).String())
	})

	t.Run("string coerced with autoConvert", func(t *testing.T) {
		rs := numberRules(entity.FieldRule{Type: entity.FieldNumber})
		out, err := ValidateRow(entity.Row{"qty": " 12.5 "}, rs, Options{AutoConvert: true})
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("12.5").Equal(out["qty"].(decimal.Decimal)))

		_, err = ValidateRow(entity.Row{"qty": "12.5"}, rs, Options{})
		require.Error(t, err)
	})
}

// TestValidateRequired validates null handling of required fields.
func TestValidateRequired(t *testing.T) {
	rs := &entity.ValidationRuleset{
		Fields: map[string]entity.FieldRule{
			"id":   {Type: entity.FieldNumber, Required: true},
			"note": {Type: entity.FieldString},
		},
	}

	_, err := ValidateRow(entity.Row{"id": nil, "note": "x"}, rs, Options{})
	require.Error(t, err)
	var errs Errors
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, "id", errs[0].Field)

	// Whitespace-only sanitizes to null and still violates required.
	_, err = ValidateRow(entity.Row{"id": "   ", "note": "x"}, rs, Options{AutoConvert: true})
	require.Error(t, err)

	out, err := ValidateRow(entity.Row{"id": int64(1), "note": nil}, rs, Options{})
	require.NoError(t, err)
	assert.Nil(t, out["note"])
}

// TestValidateCollectsAllErrors validates error accumulation vs fail-fast.
func TestValidateCollectsAllErrors(t *testing.T) {
	rs := &entity.ValidationRuleset{
		Fields: map[string]entity.FieldRule{
			"a": {Type: entity.FieldNumber, Required: true},
			"b": {Type: entity.FieldNumber, Required: true},
		},
	}
	row := entity.Row{"a": nil, "b": nil}

	_, err := ValidateRow(row, rs, Options{})
	var errs Errors
	require.ErrorAs(t, err, &errs)
	assert.Len(t, errs, 2)

	_, err = ValidateRow(row, rs, Options{ThrowOnFirstError: true})
	require.ErrorAs(t, err, &errs)
	assert.Len(t, errs, 1)
}

// TestValidateExtraFields validates retention of unschema'd fields.
func TestValidateExtraFields(t *testing.T) {
	rs := &entity.ValidationRuleset{
		Fields: map[string]entity.FieldRule{"id": {Type: entity.FieldNumber}},
	}
	row := entity.Row{"id": int64(1), "extra": " keep ", "blank": "  "}

	out, err := ValidateRow(row, rs, Options{})
	require.NoError(t, err)
	_, ok := out["extra"]
	assert.False(t, ok, "extra fields dropped by default")

	out, err = ValidateRow(row, rs, Options{AllowExtraFields: true})
	require.NoError(t, err)
	assert.Equal(t, " keep ", out["extra"])
	assert.Nil(t, out["blank"], "extras are sanitized")
}

// TestValidateDateAndBool validates the remaining semantic types.
func TestValidateDateAndBool(t *testing.T) {
	rs := &entity.ValidationRuleset{
		Fields: map[string]entity.FieldRule{
			"when": {Type: entity.FieldDate},
			"ok":   {Type: entity.FieldBoolean},
		},
	}

	out, err := ValidateRow(entity.Row{"when": "2025-03-01", "ok": "yes"}, rs, Options{AutoConvert: true})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), out["when"])
	assert.Equal(t, true, out["ok"])

	_, err = ValidateRow(entity.Row{"when": "not-a-date", "ok": true}, rs, Options{AutoConvert: true})
	require.Error(t, err)
}

// TestParseNumber validates the lenient coercion used by promotion linking.
func TestParseNumber(t *testing.T) {
	d, ok := ParseNumber(" 3.5 ")
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("3.5").Equal(d))

	d, ok = ParseNumber(int64(4))
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(4).Equal(d))

	_, ok = ParseNumber(nil)
	assert.False(t, ok)

	_, ok = ParseNumber("abc")
	assert.False(t, ok)
}
