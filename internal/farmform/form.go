// Package farmform validates the farm attribute form and submits it together
// with a finished boundary.
package farmform

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// FormValue is the raw text of one form input. JSON numbers and strings are
// both accepted so a client can post what the user typed without coercing it.
type FormValue string

func (v *FormValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = FormValue(s)
	case len(data) > 0 && (data[0] == '{' || data[0] == '['):
		return fmt.Errorf("form value must be a string or number")
	default:
		*v = FormValue(data)
	}
	return nil
}

func (v FormValue) trimmed() string { return strings.TrimSpace(string(v)) }

// Form holds what the user entered, unparsed.
type Form struct {
	Name      FormValue `json:"name"`
	Size      FormValue `json:"size"`
	HeadCount FormValue `json:"head_count"`
	Notes     FormValue `json:"notes"`
}

// Attributes are the parsed farm fields.
type Attributes struct {
	Name         string
	SizeHectares float64
	HeadCount    int
	// Notes is nil when the user left the field blank.
	Notes *string
}

// ValidationKind classifies a rejected form.
type ValidationKind string

const (
	MissingField  ValidationKind = "missing_field"
	NonNumeric    ValidationKind = "non_numeric"
	NegativeValue ValidationKind = "negative_value"
)

// Form field names as reported in ValidationError.
const (
	FieldName      = "name"
	FieldSize      = "size"
	FieldHeadCount = "head_count"
)

// ValidationError is returned before any store call when the form is unusable.
type ValidationError struct {
	Kind  ValidationKind
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid farm form: %s %s", e.Field, e.Kind)
}

var fieldLabels = map[string]string{
	FieldName:      "Farm name",
	FieldSize:      "Size",
	FieldHeadCount: "Head count",
}

// Message is the text shown next to the form.
func (e *ValidationError) Message() string {
	label, ok := fieldLabels[e.Field]
	if !ok {
		label = e.Field
	}
	switch e.Kind {
	case MissingField:
		return label + " is required"
	case NonNumeric:
		return label + " must be a number"
	case NegativeValue:
		if e.Field == FieldSize {
			return label + " must be greater than zero"
		}
		return label + " cannot be negative"
	}
	return label + " is invalid"
}

func invalid(kind ValidationKind, field string) error {
	return &ValidationError{Kind: kind, Field: field}
}

// parseNumber rejects NaN and infinities, which strconv happily accepts.
func parseNumber(s string) (float64, bool) {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// Validate checks the form locally. Fields are checked in display order and
// the first problem is returned.
func Validate(f Form) (Attributes, error) {
	var attrs Attributes

	attrs.Name = f.Name.trimmed()
	if attrs.Name == "" {
		return Attributes{}, invalid(MissingField, FieldName)
	}

	size := f.Size.trimmed()
	if size == "" {
		return Attributes{}, invalid(MissingField, FieldSize)
	}
	n, ok := parseNumber(size)
	if !ok {
		return Attributes{}, invalid(NonNumeric, FieldSize)
	}
	if n <= 0 {
		return Attributes{}, invalid(NegativeValue, FieldSize)
	}
	attrs.SizeHectares = n

	if hc := f.HeadCount.trimmed(); hc != "" {
		h, ok := parseNumber(hc)
		if !ok || h != math.Trunc(h) || h > math.MaxInt32 || h < math.MinInt32 {
			return Attributes{}, invalid(NonNumeric, FieldHeadCount)
		}
		if h < 0 {
			return Attributes{}, invalid(NegativeValue, FieldHeadCount)
		}
		attrs.HeadCount = int(h)
	}

	if notes := f.Notes.trimmed(); notes != "" {
		attrs.Notes = &notes
	}
	return attrs, nil
}

// FormState is the open form: the values entered so far, which farm it edits
// and whether a submission is in flight. Values survive failed submissions.
type FormState struct {
	Values     Form       `json:"values"`
	FarmID     *uuid.UUID `json:"farm_id,omitempty"`
	Submitting bool       `json:"submitting"`
	LastError  string     `json:"last_error,omitempty"`
}

// Reset closes the form.
func (s *FormState) Reset() {
	*s = FormState{}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
