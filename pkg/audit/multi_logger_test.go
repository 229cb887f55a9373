package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiLogger_Log_Sync(t *testing.T) {
	logger1 := &mockLogger{}
	logger2 := &mockLogger{}

	multiLogger := NewMultiLogger(logger1, logger2)
	multiLogger.SetAsync(false)

	event := &Event{
		Timestamp: time.Now(),
		EventType: EventTypeAssignmentGrant,
		Status:    EventStatusSuccess,
		Metadata:  make(map[string]interface{}),
	}

	err := multiLogger.Log(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, 1, logger1.eventCount())
	assert.Equal(t, 1, logger2.eventCount())
}

func TestMultiLogger_Log_Async(t *testing.T) {
	logger1 := &mockLogger{}
	logger2 := &mockLogger{}

	multiLogger := NewMultiLogger(logger1, logger2)
	multiLogger.SetAsync(true)

	event := &Event{
		Timestamp: time.Now(),
		EventType: EventTypeSupportGrantRevoke,
		Status:    EventStatusSuccess,
		Metadata:  make(map[string]interface{}),
	}

	err := multiLogger.Log(context.Background(), event)
	require.NoError(t, err)

	multiLogger.Wait()

	assert.Equal(t, 1, logger1.eventCount())
	assert.Equal(t, 1, logger2.eventCount())
}

func TestMultiLogger_Sync_ContinuesPastFailure(t *testing.T) {
	failing := &mockLogger{err: assert.AnError}
	working := &mockLogger{}

	multiLogger := NewMultiLogger(failing, working)
	multiLogger.SetAsync(false)

	err := multiLogger.Log(context.Background(), &Event{EventType: EventTypeAccessDenied})
	assert.Error(t, err)

	// The working sink still received the event.
	assert.Equal(t, 1, working.eventCount())
}

func TestMultiLogger_Close(t *testing.T) {
	logger1 := &mockLogger{}
	logger2 := &mockLogger{}

	multiLogger := NewMultiLogger(logger1, logger2)
	require.NoError(t, multiLogger.Close())

	assert.True(t, logger1.closed)
	assert.True(t, logger2.closed)
}

func TestMultiLogger_Empty(t *testing.T) {
	multiLogger := NewMultiLogger()
	assert.NoError(t, multiLogger.Log(context.Background(), &Event{}))
	assert.NoError(t, multiLogger.Close())
}
