package autosave_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepline/stepline/pkg/autosave"
)

type writeRecorder struct {
	mu     sync.Mutex
	writes []recordedWrite
	fail   error
}

type recordedWrite struct {
	stepKey string
	payload string
}

func (r *writeRecorder) write(_ context.Context, stepKey string, payload json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fail != nil {
		return r.fail
	}

	r.writes = append(r.writes, recordedWrite{stepKey: stepKey, payload: string(payload)})

	return nil
}

func (r *writeRecorder) recorded() []recordedWrite {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]recordedWrite{}, r.writes...)
}

func (r *writeRecorder) setFail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fail = err
}

const testInterval = 20 * time.Millisecond

func TestScheduleCoalescesBurstIntoLastPayload(t *testing.T) {
	recorder := &writeRecorder{}
	coordinator := autosave.NewCoordinator(slog.Default(), recorder.write, autosave.WithInterval(testInterval))
	defer coordinator.Close(t.Context())

	coordinator.Schedule("profile", json.RawMessage(`{"name":"A"}`))
	coordinator.Schedule("profile", json.RawMessage(`{"name":"Ad"}`))
	coordinator.Schedule("profile", json.RawMessage(`{"name":"Ada"}`))

	require.Eventually(t, func() bool {
		return len(recorder.recorded()) == 1
	}, time.Second, 5*time.Millisecond)

	writes := recorder.recorded()
	assert.Equal(t, "profile", writes[0].stepKey)
	assert.JSONEq(t, `{"name":"Ada"}`, writes[0].payload)
}

func TestScheduleSeparateKeysWriteIndependently(t *testing.T) {
	recorder := &writeRecorder{}
	coordinator := autosave.NewCoordinator(slog.Default(), recorder.write, autosave.WithInterval(testInterval))
	defer coordinator.Close(t.Context())

	coordinator.Schedule("profile", json.RawMessage(`{"name":"Ada"}`))
	coordinator.Schedule("documents", json.RawMessage(`{"count":2}`))

	require.Eventually(t, func() bool {
		return len(recorder.recorded()) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestIdenticalPayloadSkipsWrite(t *testing.T) {
	recorder := &writeRecorder{}
	coordinator := autosave.NewCoordinator(slog.Default(), recorder.write, autosave.WithInterval(testInterval))
	defer coordinator.Close(t.Context())

	payload := json.RawMessage(`{"name":"Ada"}`)

	coordinator.Schedule("profile", payload)
	require.Eventually(t, func() bool {
		return len(recorder.recorded()) == 1
	}, time.Second, 5*time.Millisecond)

	coordinator.Schedule("profile", payload)
	time.Sleep(3 * testInterval)

	assert.Len(t, recorder.recorded(), 1, "unchanged payload must not be rewritten")
}

func TestFlushWritesPendingImmediately(t *testing.T) {
	recorder := &writeRecorder{}
	coordinator := autosave.NewCoordinator(slog.Default(), recorder.write, autosave.WithInterval(time.Hour))
	defer coordinator.Close(t.Context())

	coordinator.Schedule("profile", json.RawMessage(`{"name":"Ada"}`))

	require.NoError(t, coordinator.Flush(t.Context()))
	assert.Len(t, recorder.recorded(), 1)
}

func TestWriteFailureReportedAndRetriedOnNextEdit(t *testing.T) {
	recorder := &writeRecorder{}
	coordinator := autosave.NewCoordinator(slog.Default(), recorder.write, autosave.WithInterval(testInterval))
	defer coordinator.Close(t.Context())

	storeDown := errors.New("store down")
	recorder.setFail(storeDown)

	coordinator.Schedule("profile", json.RawMessage(`{"name":"Ada"}`))

	select {
	case err := <-coordinator.Errors():
		require.ErrorIs(t, err, storeDown)
	case <-time.After(time.Second):
		t.Fatal("expected a write failure on the error channel")
	}

	recorder.setFail(nil)
	coordinator.Schedule("profile", json.RawMessage(`{"name":"Ada L"}`))

	require.Eventually(t, func() bool {
		return len(recorder.recorded()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"name":"Ada L"}`, recorder.recorded()[0].payload)
}

func TestCloseFlushesAndRejectsFurtherSchedules(t *testing.T) {
	recorder := &writeRecorder{}
	coordinator := autosave.NewCoordinator(slog.Default(), recorder.write, autosave.WithInterval(time.Hour))

	coordinator.Schedule("profile", json.RawMessage(`{"name":"Ada"}`))

	require.NoError(t, coordinator.Close(t.Context()))
	assert.Len(t, recorder.recorded(), 1, "close flushes pending writes")

	coordinator.Schedule("profile", json.RawMessage(`{"name":"ignored"}`))
	time.Sleep(2 * testInterval)
	assert.Len(t, recorder.recorded(), 1)

	_, open := <-coordinator.Errors()
	assert.False(t, open, "error channel closes with the coordinator")
}
