package splitform

import (
	"github.com/stretchr/testify/assert"
	"strings"
	"testing"
)

func formWith(observations string, pcts ...*float64) *Form {
	f := &Form{Observations: observations}
	for i, p := range pcts {
		f.Methods = append(f.Methods, SplitEntry{ID: string(rune('a' + i)), Percentage: p})
	}
	return f
}

func TestMaxSplitMethods(t *testing.T) {
	tests := []struct {
		name    string
		pcts    []*float64
		wantErr bool
	}{
		{name: "no methods", pcts: nil},
		{name: "all null", pcts: []*float64{nil, nil, nil, nil}},
		{name: "three selected", pcts: []*float64{Percent(20), Percent(30), Percent(40), nil}},
		{name: "zeros are not selected", pcts: []*float64{Percent(20), Percent(30), Percent(40), Percent(0), Percent(0)}},
		{name: "four selected", pcts: []*float64{Percent(20), Percent(20), Percent(20), Percent(20)}, wantErr: true},
		{name: "five selected", pcts: []*float64{Percent(10), Percent(10), Percent(10), Percent(10), Percent(10)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := MaxSplitMethods(3)(formWith("ok", tt.pcts...))
			assert.Equal(t, tt.wantErr, errs[TagMaxSplit])
		})
	}
}

func TestMaxPercentage(t *testing.T) {
	tests := []struct {
		name    string
		pcts    []*float64
		wantErr bool
	}{
		{name: "empty", pcts: nil},
		{name: "exactly 100", pcts: []*float64{Percent(50), Percent(50)}},
		{name: "nulls ignored", pcts: []*float64{Percent(60), nil, Percent(40)}},
		{name: "101 across two", pcts: []*float64{Percent(60), Percent(41)}, wantErr: true},
		{name: "single over 100", pcts: []*float64{Percent(150)}, wantErr: true},
		{name: "fraction over", pcts: []*float64{Percent(50), Percent(50.5)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := MaxPercentage()(formWith("ok", tt.pcts...))
			assert.Equal(t, tt.wantErr, errs[TagMaxSplitPercentage])
		})
	}
}

func TestValidatePercentage(t *testing.T) {
	r := DefaultRules()

	assert.Empty(t, r.ValidatePercentage(nil))
	assert.Empty(t, r.ValidatePercentage(Percent(20)))
	assert.Empty(t, r.ValidatePercentage(Percent(100)))
	assert.True(t, r.ValidatePercentage(Percent(15))[TagMin])
	assert.True(t, r.ValidatePercentage(Percent(0))[TagMin])
	assert.True(t, r.ValidatePercentage(Percent(101))[TagMax])
}

func TestValidateObservations(t *testing.T) {
	r := DefaultRules()
	tests := []struct {
		in   string
		want Errors
	}{
		{in: "", want: Errors{TagRequired: true}},
		{in: "ab", want: Errors{TagMinLength: true}},
		{in: "abc", want: nil},
		{in: strings.Repeat("x", 15), want: nil},
		{in: strings.Repeat("x", 16), want: Errors{TagMaxLength: true}},
		{in: "ñá", want: Errors{TagMinLength: true}},
		{in: "ñáé", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, r.ValidateObservations(tt.in))
		})
	}
}

func TestValidate(t *testing.T) {
	r := DefaultRules()

	t.Run("single fifty is valid", func(t *testing.T) {
		v := Validate(formWith("pago", Percent(50), nil, nil), r)
		assert.True(t, v.Valid)
		assert.Empty(t, v.Errors)
		assert.True(t, v.MethodValid(0))
		assert.True(t, v.MethodValid(1))
	})

	t.Run("single fifteen marks the entry", func(t *testing.T) {
		v := Validate(formWith("pago", Percent(15), nil), r)
		assert.False(t, v.Valid)
		assert.False(t, v.MethodValid(0))
		assert.True(t, v.Methods[0][TagMin])
		assert.True(t, v.MethodValid(1))
		assert.Empty(t, v.Errors)
	})

	t.Run("four non-zero", func(t *testing.T) {
		v := Validate(formWith("pago", Percent(20), Percent(20), Percent(20), Percent(20)), r)
		assert.False(t, v.Valid)
		assert.True(t, v.Has(TagMaxSplit))
		assert.False(t, v.Has(TagMaxSplitPercentage))
	})

	t.Run("sum over 100", func(t *testing.T) {
		v := Validate(formWith("pago", Percent(60), Percent(41)), r)
		assert.False(t, v.Valid)
		assert.True(t, v.Has(TagMaxSplitPercentage))
		assert.False(t, v.Has(TagMaxSplit))
	})

	t.Run("both aggregate flags", func(t *testing.T) {
		v := Validate(formWith("pago", Percent(30), Percent(30), Percent(30), Percent(30)), r)
		assert.True(t, v.Has(TagMaxSplit))
		assert.True(t, v.Has(TagMaxSplitPercentage))
	})

	t.Run("missing observations", func(t *testing.T) {
		v := Validate(formWith("", Percent(50)), r)
		assert.False(t, v.Valid)
		assert.True(t, v.Observations[TagRequired])
	})

	t.Run("method index bounds", func(t *testing.T) {
		v := Validate(formWith("pago", nil), r)
		assert.False(t, v.MethodValid(-1))
		assert.False(t, v.MethodValid(1))
	})
}

func TestRulesValidatorsHonourTotal(t *testing.T) {
	r := DefaultRules()
	r.TotalPercentage = 80
	r.MaxMethods = 1

	v := Validate(formWith("pago", Percent(50), Percent(40)), r)
	assert.True(t, v.Has(TagMaxSplitPercentage))
	assert.True(t, v.Has(TagMaxSplit))
}
