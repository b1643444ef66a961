package calc_test

import (
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodedDrexler/eCalc-Auto/internal/calc"
)

func TestParseLocaleNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"612", 612, true},
		{"12,5", 12.5, true},
		{"12.5", 12.5, true},
		{"1'250", 1250, true},
		{"1.234,5 g", 1234.5, true},
		{"1,234.5 g", 1234.5, true},
		{"1.234.567", 1234567, true},
		{"1,234,567", 1234567, true},
		{"-3,2", -3.2, true},
		{"ca. 85 %", 85, true},
		{"12.", 12, true},
		{"-", 0, false},
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := calc.ParseLocaleNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestParseValue(t *testing.T) {
	v := calc.ParseValue(" 1'250 ")
	require.True(t, v.IsNumber())
	assert.InDelta(t, 1250.0, v.Num, 1e-9)
	assert.Equal(t, "1'250", v.String(), "read values keep the page text")

	assert.Equal(t, calc.KindNotAvailable, calc.ParseValue("-").Kind)
	assert.Equal(t, calc.KindNotAvailable, calc.ParseValue("").Kind)
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "62.5", calc.Number(62.5).String())
	assert.Equal(t, "33.33", calc.Number(100.0/3).String())
	assert.Equal(t, "N/A", calc.NotAvailable().String())
	assert.Equal(t, "Timeout", calc.TimedOut().String())
	assert.Equal(t, "OutOfRange", calc.OutOfRange().String())
	assert.Equal(t, "Error", calc.Failed().String())

	var zero calc.Value
	assert.False(t, zero.IsNumber(), "the zero value is not a measured zero")
	_, ok := zero.Float()
	assert.False(t, ok)
}

func TestValueJSON(t *testing.T) {
	json := jsoniter.ConfigCompatibleWithStandardLibrary

	data, err := json.Marshal(calc.ParseValue("12,5"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"number","value":12.5,"raw":"12,5"}`, string(data))

	data, err = json.Marshal(calc.TimedOut())
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"timed_out"}`, string(data))

	var v calc.Value
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"out_of_range"}`), &v))
	assert.Equal(t, calc.OutOfRange(), v)

	require.NoError(t, json.Unmarshal([]byte(`{"kind":"number","value":0}`), &v))
	assert.True(t, v.IsNumber())
	assert.Zero(t, v.Num)

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"bogus"}`), &v))
}
