package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLabels = labels{"A", "B", "C"}

func TestCount(t *testing.T) {
	outcome := Count(withRows(det(0, 0, 1, 1, 0.9), det(5, 5, 6, 6, 0.8)))
	assert.Equal(t, ModeCount, outcome.Mode)
	assert.Equal(t, 2, outcome.Count)
	assert.True(t, outcome.Found)
	assert.Nil(t, outcome.Identification)
	assert.Equal(t, "2 pills", outcome.String())

	empty := Count(nil)
	assert.Equal(t, 0, empty.Count)
	assert.False(t, empty.Found)
}

// TestIdentifyUsesWinnerScores validates that the label comes from the argmax of the most
// confident detection's own class scores.
func TestIdentifyUsesWinnerScores(t *testing.T) {
	set := withRows(
		det(0, 0, 10, 10, 0.7, 0.8, 0.1, 0.1),
		det(20, 20, 30, 30, 0.9, 0.1, 0.1, 0.8),
	)

	outcome := Identify(set, testLabels)
	require.True(t, outcome.Found)
	require.NotNil(t, outcome.Identification)
	assert.Equal(t, "C", outcome.Identification.Label)
	assert.Equal(t, 2, outcome.Identification.ClassIndex)
	assert.Equal(t, float32(0.9), outcome.Identification.Confidence)
	assert.Equal(t, set[1].Box, outcome.Identification.Box)
	assert.Equal(t, "pill C (confidence 0.900)", outcome.String())
}

func TestIdentifyTies(t *testing.T) {
	t.Run("confidence tie keeps first detection", func(t *testing.T) {
		set := withRows(
			det(0, 0, 10, 10, 0.9, 1, 0, 0),
			det(20, 20, 30, 30, 0.9, 0, 1, 0),
		)
		assert.Equal(t, "A", Identify(set, testLabels).Identification.Label)
	})

	t.Run("score tie keeps lowest class index", func(t *testing.T) {
		set := withRows(det(0, 0, 10, 10, 0.9, 0.2, 0.4, 0.4))
		assert.Equal(t, 1, Identify(set, testLabels).Identification.ClassIndex)
	})
}

func TestIdentifyUnknownClass(t *testing.T) {
	set := withRows(det(0, 0, 10, 10, 0.9, 0, 0, 0, 0.99))

	outcome := Identify(set, testLabels)
	require.True(t, outcome.Found)
	assert.Equal(t, 3, outcome.Identification.ClassIndex)
	assert.Equal(t, "Unknown", outcome.Identification.Label, "Index outside the table is not an error")
}

func TestIdentifyBoxOnlyModel(t *testing.T) {
	outcome := Identify(withRows(det(0, 0, 10, 10, 0.9)), testLabels)
	require.True(t, outcome.Found)
	assert.Equal(t, -1, outcome.Identification.ClassIndex)
	assert.Equal(t, "Unknown", outcome.Identification.Label)
}

// TestIdentifyEmptySet validates the "no pill detected" sentinel.
func TestIdentifyEmptySet(t *testing.T) {
	outcome := Identify(DetectionSet{}, testLabels)
	assert.False(t, outcome.Found)
	assert.Nil(t, outcome.Identification)
	assert.Equal(t, NoPillDetected, outcome.String())
}

func TestInterpret(t *testing.T) {
	set := withRows(det(0, 0, 10, 10, 0.9, 0, 1, 0))

	counted, err := Interpret(set, ModeCount, testLabels)
	require.NoError(t, err)
	assert.Equal(t, 1, counted.Count)

	identified, err := Interpret(set, ModeIdentify, testLabels)
	require.NoError(t, err)
	assert.Equal(t, "B", identified.Identification.Label)

	_, err = Interpret(set, Mode(7), testLabels)
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestModeText(t *testing.T) {
	mode, err := ParseMode("identify")
	require.NoError(t, err)
	assert.Equal(t, ModeIdentify, mode)

	var m Mode
	require.NoError(t, m.UnmarshalText([]byte("count")))
	assert.Equal(t, ModeCount, m)
	assert.ErrorIs(t, m.UnmarshalText([]byte("classify")), ErrUnknownMode)
}

func TestArgMax(t *testing.T) {
	assert.Equal(t, -1, ArgMax(nil))
	assert.Equal(t, 0, ArgMax([]float32{0.5}))
	assert.Equal(t, 2, ArgMax([]float32{0.1, 0.2, 0.7, 0.0}))
	assert.Equal(t, 0, ArgMax([]float32{0.3, 0.3}))
	assert.Equal(t, 1, ArgMax([]float32{-5, -1, -3}), "Logits may be negative")
}
