package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-pillcheck/models/model"
	"github.com/nvr-ai/go-pillcheck/models/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPillClassTableLabel validates index lookups, including indexes outside the table
// which must resolve to UnknownLabel rather than fail.
func TestPillClassTableLabel(t *testing.T) {
	table := MustPillClassTable("A", "B", "C")

	tests := []struct {
		index    int
		expected string
	}{
		{index: 0, expected: "A"},
		{index: 2, expected: "C"},
		{index: 3, expected: UnknownLabel},
		{index: 15, expected: UnknownLabel},
		{index: -1, expected: UnknownLabel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, table.Label(tt.index), "index %d", tt.index)
	}

	var empty *PillClassTable
	assert.Equal(t, UnknownLabel, empty.Label(0))
	assert.Equal(t, 0, empty.Len())
}

func TestNewPillClassTableErrors(t *testing.T) {
	names := make([]string, MaxClasses+1)
	for i := range names {
		names[i] = string(rune('a' + i))
	}

	_, err := NewPillClassTable(names...)
	assert.ErrorIs(t, err, ErrTooManyClasses)

	_, err = NewPillClassTable(names[:MaxClasses]...)
	assert.NoError(t, err, "MaxClasses labels is allowed")

	_, err = NewPillClassTable("A", "")
	assert.Error(t, err)

	_, err = NewPillClassTable("A", "B", "A")
	assert.Error(t, err)

	assert.Panics(t, func() { MustPillClassTable("A", "A") })
}

func TestPillClassTableIndex(t *testing.T) {
	idx, ok := PillSearchClasses.Index("K")
	require.True(t, ok)
	assert.Equal(t, 10, idx)

	_, ok = PillSearchClasses.Index("Z")
	assert.False(t, ok)

	assert.Equal(t, 11, PillSearchClasses.Len())
	assert.Equal(t, "A", PillSearchClasses.Label(0))
	assert.Equal(t, "K", PillSearchClasses.Label(10))
	assert.Equal(t, UnknownLabel, PillSearchClasses.Label(11))
}

// TestPillClassTableSatisfiesLabeler validates the table can be handed straight to the
// result interpreter.
func TestPillClassTableSatisfiesLabeler(t *testing.T) {
	var labeler postprocess.Labeler = PillSearchClasses
	assert.Equal(t, "B", labeler.Label(1))
}

func TestLoadPillClassTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("classes: [round-white, oval-blue, capsule]\n"), 0o600))

	table, err := LoadPillClassTable(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"round-white", "oval-blue", "capsule"}, table.Labels())

	_, err = LoadPillClassTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParsePillClassTable([]byte("classes: {"))
	assert.Error(t, err)
}

// TestLookupPreset validates the output layout of every shipped model.
func TestLookupPreset(t *testing.T) {
	tests := []struct {
		name    string
		width   int
		mode    postprocess.Mode
		policy  postprocess.Policy
		classes int
	}{
		{name: "pill-count", width: 14, mode: postprocess.ModeCount, policy: postprocess.PolicyCenterDedup},
		{name: "pill-search", width: 16, mode: postprocess.ModeIdentify, policy: postprocess.PolicyNMS, classes: 11},
		{name: "pill-boxes", width: 5, mode: postprocess.ModeCount, policy: postprocess.PolicyNMS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			preset, err := LookupPreset(tt.name)
			require.NoError(t, err)

			assert.Equal(t, model.Name(tt.name), preset.Name)
			assert.Equal(t, model.ModelFamilyYOLOv5, preset.Family)
			assert.Equal(t, tt.width, preset.Layout.RowWidth())
			assert.Equal(t, tt.mode, preset.Mode)
			assert.Equal(t, tt.policy, preset.Policy)
			assert.Equal(t, []int64{1, 25200, int64(tt.width)}, preset.OutputShape())
			assert.Equal(t, []int64{1, 640, 640, 3}, preset.InputShape())
			assert.Equal(t, 25200*tt.width, preset.OutputLen())

			table, err := ClassTable(preset)
			require.NoError(t, err)
			assert.Equal(t, tt.classes, table.Len())
		})
	}

	_, err := LookupPreset("yolov4")
	assert.Error(t, err)
}

func TestPresetNames(t *testing.T) {
	names := PresetNames()
	require.Len(t, names, 3)
	for _, name := range names {
		_, err := LookupPreset(string(name))
		assert.NoError(t, err)
	}
	assert.Equal(t, model.ModelNamePillBoxes, names[0])
}
