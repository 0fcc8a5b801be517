// Package params holds the operator's parameter form: raw text per field and
// the all-or-nothing validation that turns it into ProcessParameters.
package params

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"furnace-optimizer/backend/pkg/models"
)

// Reason explains why a field failed validation.
type Reason string

const (
	ReasonEmpty     Reason = "empty"
	ReasonNotNumber Reason = "not-a-number"
	ReasonNonFinite Reason = "non-finite"
)

// ErrFormFrozen is returned by SetField while a request is in flight.
var ErrFormFrozen = errors.New("parameter form is read-only while a request is in flight")

// ValidationError names the first invalid field in field order.
type ValidationError struct {
	Field  models.Field
	Reason Reason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: value is %s", e.Field, e.Reason)
}

// InvalidFieldError is returned when a caller names a field that does not exist.
type InvalidFieldError struct {
	Name string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("unknown parameter field %q", e.Name)
}

// Entry is one raw form value.
type Entry struct {
	Field models.Field `json:"field"`
	Label string       `json:"label"`
	Raw   string       `json:"raw"`
}

// Form is a mutable mapping of the eight fields to raw operator text.
type Form struct {
	mu     sync.RWMutex
	raw    [models.FieldCount]string
	frozen int
}

// NewForm creates an empty form.
func NewForm() *Form {
	return &Form{}
}

// SetField stores raw text for the named field.
func (f *Form) SetField(name, rawText string) error {
	i, ok := models.Index(models.Field(name))
	if !ok {
		return &InvalidFieldError{Name: name}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frozen > 0 {
		return ErrFormFrozen
	}
	f.raw[i] = rawText
	return nil
}

// SetFields applies several values at once. Either all are stored or none.
func (f *Form) SetFields(values map[string]string) error {
	for name := range values {
		if !models.IsField(name) {
			return &InvalidFieldError{Name: name}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frozen > 0 {
		return ErrFormFrozen
	}
	for name, raw := range values {
		i, _ := models.Index(models.Field(name))
		f.raw[i] = raw
	}
	return nil
}

// Entries returns the raw values in field order.
func (f *Form) Entries() []Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Entry, models.FieldCount)
	for i, field := range models.Fields {
		out[i] = Entry{Field: field, Label: models.Label(field), Raw: f.raw[i]}
	}
	return out
}

// Reset clears every field.
func (f *Form) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frozen > 0 {
		return ErrFormFrozen
	}
	f.raw = [models.FieldCount]string{}
	return nil
}

// Freeze makes the form read-only until the returned func is called.
func (f *Form) Freeze() (unfreeze func()) {
	f.mu.Lock()
	f.frozen++
	f.mu.Unlock()
	return f.unfreezer()
}

// FreezeWith stores values and freezes the form in one step, so no other
// writer can change the form between the two. It fails with ErrFormFrozen if
// the form is already frozen and leaves the form untouched on any error.
func (f *Form) FreezeWith(values map[string]string) (unfreeze func(), err error) {
	for name := range values {
		if !models.IsField(name) {
			return nil, &InvalidFieldError{Name: name}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frozen > 0 {
		return nil, ErrFormFrozen
	}
	for name, raw := range values {
		i, _ := models.Index(models.Field(name))
		f.raw[i] = raw
	}
	f.frozen++
	return f.unfreezer(), nil
}

func (f *Form) unfreezer() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.frozen--
			f.mu.Unlock()
		})
	}
}

// Validate parses every field as a finite real number. It returns the first
// failure in field order and never a partial result.
func (f *Form) Validate() (models.ProcessParameters, error) {
	f.mu.RLock()
	raw := f.raw
	f.mu.RUnlock()

	var p models.ProcessParameters
	for i, field := range models.Fields {
		v, reason := parse(raw[i])
		if reason != "" {
			return models.ProcessParameters{}, &ValidationError{Field: field, Reason: reason}
		}
		p[i] = v
	}
	return p, nil
}

func parse(raw string) (float64, Reason) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, ReasonEmpty
	}
	if isHexLiteral(s) {
		return 0, ReasonNotNumber
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, ReasonNonFinite
		}
		return 0, ReasonNotNumber
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ReasonNonFinite
	}
	return v, ""
}

// isHexLiteral reports whether s uses hexadecimal float syntax.
func isHexLiteral(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
