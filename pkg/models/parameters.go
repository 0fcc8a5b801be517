// Package models defines the domain models shared by the blast-furnace
// optimizer packages.
package models

import (
	"encoding/json"
	"strings"
)

// Field is the canonical name of one measured process parameter.
type Field string

const (
	FieldBlastFurnaceTemp Field = "blast_furnace_temp"
	FieldHotBlastPressure Field = "hot_blast_pressure"
	FieldOxygenEnrichment Field = "oxygen_enrichment"
	FieldHumidity         Field = "humidity"
	FieldCokeRate         Field = "coke_rate"
	FieldPulverizedCoal   Field = "pulverized_coal"
	FieldSlagRate         Field = "slag_rate"
	FieldSinterRate       Field = "sinter_rate"
)

// FieldCount is the number of process parameters.
const FieldCount = 8

// Fields is the fixed field order. The prediction vector returned by the
// optimization service is read positionally against this list, so every
// package must iterate Fields rather than a map.
var Fields = [FieldCount]Field{
	FieldBlastFurnaceTemp,
	FieldHotBlastPressure,
	FieldOxygenEnrichment,
	FieldHumidity,
	FieldCokeRate,
	FieldPulverizedCoal,
	FieldSlagRate,
	FieldSinterRate,
}

// Index returns the position of name in Fields.
func Index(name Field) (int, bool) {
	for i, f := range Fields {
		if f == name {
			return i, true
		}
	}
	return -1, false
}

// IsField reports whether name is one of the eight known fields.
func IsField(name string) bool {
	_, ok := Index(Field(name))
	return ok
}

// Label returns the operator-facing label, e.g. "Blast Furnace Temp".
func Label(f Field) string {
	words := strings.Split(string(f), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ProcessParameters holds one validated value per field, in Fields order.
type ProcessParameters [FieldCount]float64

// Get returns the value of the named field.
func (p ProcessParameters) Get(name Field) (float64, bool) {
	i, ok := Index(name)
	if !ok {
		return 0, false
	}
	return p[i], true
}

// Values returns the values in Fields order.
func (p ProcessParameters) Values() []float64 {
	out := make([]float64, FieldCount)
	copy(out, p[:])
	return out
}

// Map returns the parameters keyed by canonical field name.
func (p ProcessParameters) Map() map[string]float64 {
	m := make(map[string]float64, FieldCount)
	for i, f := range Fields {
		m[string(f)] = p[i]
	}
	return m
}

// MarshalJSON encodes the parameters as an object keyed by field name, which
// is the request body shape expected by /api/predict.
func (p ProcessParameters) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map())
}

// UnmarshalJSON decodes an object keyed by field name. Unknown keys are
// ignored and missing keys leave the value at zero.
func (p *ProcessParameters) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for i, f := range Fields {
		p[i] = m[string(f)]
	}
	return nil
}
