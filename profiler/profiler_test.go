package profiler

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageTimerRecordsDurations(t *testing.T) {
	timer := NewStageTimer(0)

	timer.RecordDuration(StageDecode, 3*time.Millisecond)
	timer.RecordDuration(StageDecode, 1*time.Millisecond)
	timer.RecordDuration(StageFilter, 2*time.Millisecond)

	stages := timer.Stages()
	require.Len(t, stages, 2)
	assert.Equal(t, StageDecode, stages[0].Name, "Stages are sorted by name")

	decode, ok := timer.Stage(StageDecode)
	require.True(t, ok)
	assert.Equal(t, int64(2), decode.Count)
	assert.Equal(t, 2*time.Millisecond, decode.Avg)
	assert.Equal(t, 1*time.Millisecond, decode.Min)
	assert.Equal(t, 3*time.Millisecond, decode.Max)
	assert.Equal(t, 1*time.Millisecond, decode.Last)

	_, ok = timer.Stage(StageInvoke)
	assert.False(t, ok)
}

// TestStageTimerWindow validates that the average only covers the sliding window while
// the count covers every sample.
func TestStageTimerWindow(t *testing.T) {
	timer := NewStageTimer(2)

	timer.RecordDuration(StageSuppress, 10*time.Millisecond)
	timer.RecordDuration(StageSuppress, 2*time.Millisecond)
	timer.RecordDuration(StageSuppress, 4*time.Millisecond)

	stats, ok := timer.Stage(StageSuppress)
	require.True(t, ok)
	assert.Equal(t, int64(3), stats.Count)
	assert.Equal(t, 3*time.Millisecond, stats.Avg)
}

func TestStageTimerMetrics(t *testing.T) {
	timer := NewStageTimer(10)
	timer.RecordMetric("candidates", 25200)
	timer.RecordMetric("final", 3)
	timer.RecordMetric("final", 5)

	metrics := timer.Metrics()
	require.Len(t, metrics, 2)
	assert.Equal(t, "final", metrics[1].Name)
	assert.Equal(t, 4.0, metrics[1].Avg)
	assert.Equal(t, 5.0, metrics[1].Last)

	timer.Reset()
	assert.Empty(t, timer.Metrics())
	assert.Empty(t, timer.Stages())
}

func TestStartOperation(t *testing.T) {
	timer := NewStageTimer(10)
	done := timer.StartOperation(StageInterpret)
	done()

	stats, ok := timer.Stage(StageInterpret)
	require.True(t, ok)
	assert.Equal(t, int64(1), stats.Count)
}

// TestNilStageTimer validates that a nil timer is a silent no-op.
func TestNilStageTimer(t *testing.T) {
	var timer *StageTimer

	assert.NotPanics(t, func() {
		timer.StartOperation(StageEncode)()
		timer.RecordMetric("final", 1)
		timer.Reset()
		timer.LogReport(log.New())
	})
	assert.Nil(t, timer.Stages())
}

func TestLogReport(t *testing.T) {
	logger, hook := test.NewNullLogger()

	timer := NewStageTimer(10)
	timer.RecordDuration(StageInvoke, time.Millisecond)
	timer.RecordMetric("final", 2)
	timer.LogReport(logger)

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, StageInvoke, entries[1].Data["stage"])
	assert.Equal(t, "final", entries[2].Data["metric"])
}
