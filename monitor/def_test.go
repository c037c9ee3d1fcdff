package monitor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStartMonCancelledBeforeServing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A pre-cancelled context must still shut the metrics server down
	// cleanly instead of racing its construction.
	assert.NotPanics(t, func() { StartMon(0, ctx) })
}

func TestStatsRecordAndSnapshot(t *testing.T) {
	s := &Stats{}
	s.RecordVerdict("Recyclable", "yolo_model")
	s.RecordVerdict("Recyclable", "llm")
	s.RecordVerdict("Non-Recyclable", "fallback")

	snap := s.Snapshot()
	assert.Equal(t, int64(3), snap.Total)
	assert.Equal(t, int64(2), snap.Recyclable)
	assert.Equal(t, int64(1), snap.NonRecyclable)
	assert.Equal(t, int64(1), snap.Model)
	assert.Equal(t, int64(1), snap.LLM)
	assert.Equal(t, int64(1), snap.Fallback)
}
