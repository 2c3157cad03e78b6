package splitform

import (
	"unicode/utf8"
)

// Error tags reported by validation.
const (
	TagMaxSplit           = "maxSplit"
	TagMaxSplitPercentage = "maxSplitPercentage"
	TagMin                = "min"
	TagMax                = "max"
	TagRequired           = "required"
	TagMinLength          = "minlength"
	TagMaxLength          = "maxlength"
)

// Errors is the set of failing tags for a field or for the whole form.
// A nil or empty Errors means valid.
type Errors map[string]bool

func (e Errors) add(tag string) Errors {
	if e == nil {
		e = Errors{}
	}
	e[tag] = true
	return e
}

// Rules are the limits applied by Validate.
type Rules struct {
	MaxMethods      int
	MinPercentage   float64
	MaxPercentage   float64
	TotalPercentage float64
	ObservationsMin int
	ObservationsMax int
}

func DefaultRules() Rules {
	return Rules{
		MaxMethods:      3,
		MinPercentage:   20,
		MaxPercentage:   100,
		TotalPercentage: 100,
		ObservationsMin: 3,
		ObservationsMax: 15,
	}
}

// FormValidator is a cross-field check over the whole form.
type FormValidator func(f *Form) Errors

// MaxSplitMethods fails with maxSplit when more than max entries carry a
// non-null, non-zero percentage.
func MaxSplitMethods(max int) FormValidator {
	return func(f *Form) Errors {
		selected := 0
		for _, m := range f.Methods {
			if m.Percentage != nil && *m.Percentage != 0 {
				selected++
			}
		}
		if selected > max {
			return Errors{TagMaxSplit: true}
		}
		return nil
	}
}

// MaxPercentage fails with maxSplitPercentage when the non-null
// percentages add up to more than 100.
func MaxPercentage() FormValidator {
	return maxPercentageOf(100)
}

func maxPercentageOf(total float64) FormValidator {
	return func(f *Form) Errors {
		var sum float64
		for _, m := range f.Methods {
			if m.Percentage != nil {
				sum += *m.Percentage
			}
		}
		if sum > total {
			return Errors{TagMaxSplitPercentage: true}
		}
		return nil
	}
}

// Validators returns the cross-field validators installed on every form.
func (r Rules) Validators() []FormValidator {
	total := MaxPercentage()
	if r.TotalPercentage != 100 {
		total = maxPercentageOf(r.TotalPercentage)
	}
	return []FormValidator{
		MaxSplitMethods(r.MaxMethods),
		total,
	}
}

// ValidatePercentage checks one entry. A nil percentage is always valid;
// zero is not empty and is held to the minimum like any other value.
func (r Rules) ValidatePercentage(p *float64) Errors {
	if p == nil {
		return nil
	}
	var errs Errors
	if *p < r.MinPercentage {
		errs = errs.add(TagMin)
	}
	if *p > r.MaxPercentage {
		errs = errs.add(TagMax)
	}
	return errs
}

// ValidateObservations checks the free-text field. Length is counted in
// characters, not bytes; minlength is not reported for an empty value.
func (r Rules) ValidateObservations(s string) Errors {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return Errors{TagRequired: true}
	}
	var errs Errors
	if n < r.ObservationsMin {
		errs = errs.add(TagMinLength)
	}
	if n > r.ObservationsMax {
		errs = errs.add(TagMaxLength)
	}
	return errs
}

// Validation is the full result of validating a form.
type Validation struct {
	Valid        bool     `json:"valid"`
	Errors       Errors   `json:"errors,omitempty"`
	Observations Errors   `json:"observations,omitempty"`
	Methods      []Errors `json:"methods"`
}

func (v Validation) Has(tag string) bool {
	return v.Errors[tag]
}

func (v Validation) MethodValid(i int) bool {
	if i < 0 || i >= len(v.Methods) {
		return false
	}
	return len(v.Methods[i]) == 0
}

// Validate runs the field rules and the rules' cross-field validators.
func Validate(f *Form, rules Rules) Validation {
	return validate(f, rules, rules.Validators())
}

func validate(f *Form, rules Rules, validators []FormValidator) Validation {
	v := Validation{
		Methods: make([]Errors, len(f.Methods)),
	}

	v.Observations = rules.ValidateObservations(f.Observations)

	for i, m := range f.Methods {
		v.Methods[i] = rules.ValidatePercentage(m.Percentage)
	}

	for _, fv := range validators {
		for tag := range fv(f) {
			v.Errors = v.Errors.add(tag)
		}
	}

	v.Valid = len(v.Errors) == 0 && len(v.Observations) == 0
	for _, errs := range v.Methods {
		if len(errs) > 0 {
			v.Valid = false
		}
	}
	return v
}
