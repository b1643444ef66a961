package browser_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodedDrexler/eCalc-Auto/internal/browser"
	"github.com/CodedDrexler/eCalc-Auto/internal/browser/browsertest"
)

const motorSelect = `<select id="inMManufacturer">
  <option value="-1">-- select --</option>
  <option value="12" selected>T-Motor</option>
  <option value="31" disabled> SunnySky </option>
  <option>Scorpion</option>
</select>`

func TestParseOptions(t *testing.T) {
	opts, err := browser.ParseOptions(motorSelect)
	require.NoError(t, err)
	require.Len(t, opts, 4)

	assert.Equal(t, browser.Option{Value: "12", Label: "T-Motor", Selected: true}, opts[1])
	assert.Equal(t, browser.Option{Value: "31", Label: "SunnySky", Disabled: true}, opts[2])
	assert.Equal(t, "Scorpion", opts[3].Value, "value falls back to the label")
}

func TestFindOption(t *testing.T) {
	opts := []browser.Option{
		{Value: "1", Label: "LiPo 3300mAh - 45/60C"},
		{Value: "2", Label: "LiPo 3300mAh - 45/60C HV"},
		{Value: "3", Label: "max 90A"},
	}

	got, ok := browser.FindOption(opts, " LiPo 3300mAh - 45/60C ")
	require.True(t, ok)
	assert.Equal(t, "1", got.Value, "exact match wins over substring")

	got, ok = browser.FindOption(opts, "MAX 90")
	require.True(t, ok)
	assert.Equal(t, "3", got.Value)

	_, ok = browser.FindOption(opts, "")
	assert.False(t, ok)
	_, ok = browser.FindOption(opts, "NiMH")
	assert.False(t, ok)
}

func TestSelectLabel(t *testing.T) {
	ctx := context.Background()
	page := browsertest.New()
	page.Set("#inEsc", browsertest.Element{Options: []browser.Option{
		{Value: "a", Label: "max 40A"},
		{Value: "b", Label: "max 90A"},
	}})

	opt, err := browser.SelectLabel(ctx, page, "#inEsc", "max 90A")
	require.NoError(t, err)
	assert.Equal(t, "b", opt.Value)
	assert.True(t, page.Called("select #inEsc=b"))

	_, err = browser.SelectLabel(ctx, page, "#inEsc", "max 200A")
	assert.ErrorIs(t, err, browser.ErrOptionNotFound)

	opt, err = browser.SelectValueOrLabel(ctx, page, "#inEsc", "a", "max 90A")
	require.NoError(t, err)
	assert.Equal(t, "max 40A", opt.Label, "value takes precedence")

	opt, err = browser.SelectValueOrLabel(ctx, page, "#inEsc", "zz", "90A")
	require.NoError(t, err)
	assert.Equal(t, "b", opt.Value)
}
