package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsOrder(t *testing.T) {
	assert.Equal(t, FieldBlastFurnaceTemp, Fields[0])
	assert.Equal(t, FieldSinterRate, Fields[FieldCount-1])

	i, ok := Index(FieldCokeRate)
	assert.True(t, ok)
	assert.Equal(t, 4, i)

	_, ok = Index("furnace_color")
	assert.False(t, ok)
	assert.False(t, IsField("furnace_color"))
	assert.True(t, IsField("humidity"))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Blast Furnace Temp", Label(FieldBlastFurnaceTemp))
	assert.Equal(t, "Humidity", Label(FieldHumidity))
}

func TestProcessParametersJSON(t *testing.T) {
	p := ProcessParameters{1200, 3.5, 2.1, 1.0, 400, 120, 300, 800}

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var body map[string]float64
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Len(t, body, FieldCount)
	assert.Equal(t, 1200.0, body["blast_furnace_temp"])
	assert.Equal(t, 800.0, body["sinter_rate"])

	var back ProcessParameters
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p, back)

	v, ok := p.Get(FieldSlagRate)
	assert.True(t, ok)
	assert.Equal(t, 300.0, v)
	assert.Equal(t, []float64{1200, 3.5, 2.1, 1.0, 400, 120, 300, 800}, p.Values())
}

func TestPredictionResultClone(t *testing.T) {
	r := &PredictionResult{
		Prediction: []float64{1, 2},
		Message:    "ok",
		Variables:  [][]float64{{1, 2}},
		Solutions:  [][]float64{{0.1, 0.9}},
	}
	c := r.Clone()
	c.Prediction[0] = 99
	c.Solutions[0][0] = 99

	assert.Equal(t, 1.0, r.Prediction[0])
	assert.Equal(t, 0.1, r.Solutions[0][0])
	assert.Equal(t, 1, c.SolutionCount())
	assert.Nil(t, (*PredictionResult)(nil).Clone())
}
