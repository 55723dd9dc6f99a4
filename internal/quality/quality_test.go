package quality

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/internal/logger"
	"conduit/internal/records"
)

func ptr(f float64) *float64 { return &f }

func newValidator(t *testing.T, checks ...Check) *Validator {
	t.Helper()
	v, err := NewValidator(checks, NewRegistry(), logger.NewNull())
	require.NoError(t, err)
	return v
}

func TestValidateRecordReportsEveryFailure(t *testing.T) {
	t.Parallel()

	v := newValidator(t,
		Check{Column: "email", Name: CheckNotNull},
		Check{Column: "age", Name: CheckRange, Min: ptr(18), Max: ptr(65)},
	)
	res := v.ValidateRecord(records.Record{"email": nil, "age": 70})

	require.Len(t, res.Failures, 2)
	assert.Equal(t, "email", res.Failures[0].Column)
	assert.Equal(t, "Value is null or empty", res.Failures[0].Detail)
	assert.Equal(t, "age", res.Failures[1].Column)
	assert.Equal(t, "Value '70' out of range (min=18, max=65)", res.Failures[1].Detail)
	assert.Equal(t, ActionDLQ, res.Action())
}

func TestUniqueIsBatchScoped(t *testing.T) {
	t.Parallel()

	v := newValidator(t, Check{Column: "id", Name: CheckUnique})
	batch := []records.Record{{"id": 1}, {"id": 2}, {"id": 1}}

	for i := 0; i < 2; i++ {
		res := v.ValidateBatch(batch)
		require.Len(t, res.Invalid, 1)
		assert.Equal(t, batch[2], res.Invalid[0].Record)
		assert.Equal(t, 2, res.Invalid[0].Index)
		assert.Len(t, res.Valid, 2)
		assert.Equal(t, "Value '1' is not unique in this batch", res.Invalid[0].Failures[0].Detail)
	}
}

func TestBuiltInChecks(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		check  Check
		value  any
		ok     bool
		detail string
	}{
		"not_null ok":        {check: Check{Name: CheckNotNull}, value: "x", ok: true},
		"not_null empty":     {check: Check{Name: CheckNotNull}, value: "", detail: "Value is null or empty"},
		"regex full match":   {check: Check{Name: CheckRegex, Pattern: `[a-z]+`}, value: "abc", ok: true},
		"regex partial":      {check: Check{Name: CheckRegex, Pattern: `[a-z]+`}, value: "abc1", detail: "Value 'abc1' does not match pattern '[a-z]+'"},
		"regex non string":   {check: Check{Name: CheckRegex, Pattern: `\d+`}, value: 12, detail: "Value '12' does not match pattern '\\d+'"},
		"range numeric text": {check: Check{Name: CheckRange, Min: ptr(1)}, value: "5", ok: true},
		"range inclusive":    {check: Check{Name: CheckRange, Min: ptr(1), Max: ptr(5)}, value: 5, ok: true},
		"range not number":   {check: Check{Name: CheckRange, Max: ptr(5)}, value: "abc", detail: "Value 'abc' out of range (max=5)"},
		"enum hit":           {check: Check{Name: CheckEnum, Allowed: []any{"a", "b"}}, value: "b", ok: true},
		"enum numeric":       {check: Check{Name: CheckEnum, Allowed: []any{1, 2}}, value: int64(2), ok: true},
		"enum miss":          {check: Check{Name: CheckEnum, Allowed: []any{"a", "b"}}, value: "c", detail: "Value 'c' not in allowed list: [a b]"},
		"enum string vs int": {check: Check{Name: CheckEnum, Allowed: []any{1}}, value: "1", detail: "Value '1' not in allowed list: [1]"},
	}

	reg := NewRegistry()
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			fn, ok := reg.Lookup(tc.check.Name)
			require.True(t, ok)
			gotOK, detail := fn(tc.value, tc.check)
			assert.Equal(t, tc.ok, gotOK)
			assert.Equal(t, tc.detail, detail)
		})
	}
}

func TestCustomAndUnknownChecks(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	require.NoError(t, reg.Register("is_positive", func(v any, c Check) (bool, string) {
		f, ok := ToFloat(v)
		if !ok || f <= 0 {
			return false, "not positive"
		}
		return true, ""
	}))
	require.Error(t, reg.Register("bad name!", checkNotNull))
	require.Error(t, reg.Register("unique", checkNotNull))
	require.NoError(t, reg.Register("explodes", func(any, Check) (bool, string) { panic("boom") }))

	v, err := NewValidator([]Check{
		{Column: "n", Name: "IS_POSITIVE", Action: ActionWarn},
		{Column: "n", Name: "no_such_check"},
		{Column: "m", Name: "explodes"},
	}, reg, logger.NewNull())
	require.NoError(t, err)

	res := v.ValidateBatch([]records.Record{{"n": 3, "m": 1}, {"n": -1, "m": 1}})
	assert.Empty(t, res.Valid)
	require.Len(t, res.Invalid, 2)
	assert.Len(t, res.Invalid[0].Failures, 1, "unknown check passes")
	assert.Contains(t, res.Invalid[0].Failures[0].Detail, "boom")
	assert.Len(t, res.Invalid[1].Failures, 2)
	assert.Equal(t, ActionWarn, res.Invalid[1].Action())
}

func TestNewValidatorRejectsBadChecks(t *testing.T) {
	t.Parallel()

	tests := map[string]Check{
		"no column":   {Name: CheckNotNull},
		"bad name":    {Column: "a", Name: "not-null"},
		"bad action":  {Column: "a", Name: CheckNotNull, Action: "explode"},
		"bad pattern": {Column: "a", Name: CheckRegex, Pattern: "("},
	}
	for name, c := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := NewValidator([]Check{c}, nil, nil)
			assert.Error(t, err)
		})
	}
}

func TestHighestAction(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ActionDLQ, HighestAction(nil))
	assert.Equal(t, ActionWarn, HighestAction([]Failure{{Action: ActionDLQ}, {Action: ActionWarn}}))
	assert.Equal(t, ActionFail, HighestAction([]Failure{{Action: ActionFail}, {Action: ActionWarn}, {}}))
}

func TestAnalyzeAndAnomalies(t *testing.T) {
	t.Parallel()

	base := Analyze([]records.Record{
		{"amount": 10, "name": "a"},
		{"amount": 12, "name": "b"},
		{"amount": 11, "name": "b"},
		{"amount": 9, "name": "c"},
	})
	amount := base["amount"]
	assert.Equal(t, 4, amount.DistinctCount)
	assert.Equal(t, 9.0, amount.Min)
	assert.Equal(t, 12.0, amount.Max)
	require.NotNil(t, amount.Mean)
	assert.InDelta(t, 10.5, *amount.Mean, 1e-9)
	assert.InDelta(t, 10.5, *amount.Median, 1e-9)
	assert.Equal(t, ValueCount{Value: "b", Count: 2}, base["name"].TopValues[0])
	assert.Nil(t, base["name"].Mean)

	current := Analyze([]records.Record{
		{"amount": 100, "name": nil},
		{"amount": 110, "name": ""},
		{"amount": 105, "name": "a"},
	})
	anomalies := DetectAnomalies(base, current, DefaultThresholds)
	require.Len(t, anomalies, 2)
	assert.Equal(t, "value_range", anomalies[0].Kind)
	assert.Equal(t, "null_spike", anomalies[1].Kind)
	assert.Equal(t, "critical", anomalies[1].Severity)

	path := filepath.Join(t.TempDir(), "baseline.json")
	require.NoError(t, SaveBaseline(path, base))
	loaded, err := LoadBaseline(path)
	require.NoError(t, err)
	assert.Equal(t, base["amount"].DistinctCount, loaded["amount"].DistinctCount)

	missing, err := LoadBaseline(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}
