// Package splitform builds and validates the form used to split a payment
// across several payment methods.
//
// A Form holds one SplitEntry per payment method plus a free-text
// observation. Validate runs every field rule and the cross-field rules
// (MaxSplitMethods, MaxPercentage) over the whole form; callers re-run it
// after every mutation.
package splitform

import (
	"splitform/internal/payments"
)

// SplitEntry is the editable allocation for one payment method.
type SplitEntry struct {
	ID         string   `json:"id"`
	Percentage *float64 `json:"percentage"`
}

type Form struct {
	Observations string       `json:"observations"`
	Methods      []SplitEntry `json:"methods"`
}

// Build creates a fresh form with one entry per payment, in source order.
func Build(list []payments.Payment) *Form {
	f := &Form{
		Observations: "",
		Methods:      make([]SplitEntry, 0, len(list)),
	}
	for _, p := range list {
		f.Methods = append(f.Methods, SplitEntry{
			ID:         p.ID,
			Percentage: copyPercentage(p.Percentage),
		})
	}
	return f
}

// Clone returns a deep copy so callers cannot alias percentages.
func (f *Form) Clone() *Form {
	if f == nil {
		return nil
	}
	out := &Form{
		Observations: f.Observations,
		Methods:      make([]SplitEntry, len(f.Methods)),
	}
	for i, m := range f.Methods {
		out.Methods[i] = SplitEntry{ID: m.ID, Percentage: copyPercentage(m.Percentage)}
	}
	return out
}

func copyPercentage(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Percent is a helper for building nullable percentages.
func Percent(v float64) *float64 {
	return &v
}
