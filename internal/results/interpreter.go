// Package results turns a raw prediction response into display-ready pairs.
package results

import (
	"encoding/json"
	"strconv"

	"furnace-optimizer/backend/pkg/models"
)

// Unavailable is shown for a field the service returned no prediction for.
const Unavailable = "unavailable"

// Pair is one field aligned with its predicted value.
type Pair struct {
	Field     models.Field `json:"field"`
	Label     string       `json:"label"`
	Input     float64      `json:"input"`
	Value     float64      `json:"-"`
	Available bool         `json:"available"`
	Text      string       `json:"text"`
}

// MarshalJSON emits value as null when the prediction is unavailable.
func (p Pair) MarshalJSON() ([]byte, error) {
	type alias Pair
	var value *float64
	if p.Available {
		v := p.Value
		value = &v
	}
	return json.Marshal(struct {
		alias
		Value *float64 `json:"value"`
	}{alias(p), value})
}

// DisplayResult is the read-only view of one successful prediction.
type DisplayResult struct {
	Pairs         []Pair `json:"pairs"`
	SolutionCount int    `json:"solution_count"`
	Message       string `json:"message"`
}

// Interpret pairs each field with result.Prediction by position. A short
// prediction vector degrades to unavailable pairs; extra entries are ignored.
// result is not modified.
func Interpret(params models.ProcessParameters, result *models.PredictionResult) DisplayResult {
	var prediction []float64
	out := DisplayResult{Pairs: make([]Pair, models.FieldCount)}
	if result != nil {
		prediction = result.Prediction
		out.SolutionCount = len(result.Solutions)
		out.Message = result.Message
	}

	for i, field := range models.Fields {
		pair := Pair{
			Field: field,
			Label: models.Label(field),
			Input: params[i],
			Text:  Unavailable,
		}
		if i < len(prediction) {
			pair.Value = prediction[i]
			pair.Available = true
			pair.Text = strconv.FormatFloat(prediction[i], 'f', 2, 64)
		}
		out.Pairs[i] = pair
	}
	return out
}
