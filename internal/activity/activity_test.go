package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, *Event) error { return errors.New("db down") }

func TestEventKey(t *testing.T) {
	e := NewEvent(TypeProfileUpdated, "doc-1")
	assert.Equal(t, "doc-1", e.Key())
	assert.NotEmpty(t, e.ID)

	e.PrescriptionID = "rx-9"
	assert.Equal(t, "rx-9", e.Key())
}

func TestEmitLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	Emit(context.Background(), failingRecorder{}, NewEvent(TypeShareFailed, "doc-1"), logger)
	Emit(context.Background(), Nop{}, NewEvent(TypeShareFailed, "doc-1"), logger)
	Emit(context.Background(), nil, NewEvent(TypeShareFailed, "doc-1"), logger)

	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "failed to record activity", logs.All()[0].Message)
}
