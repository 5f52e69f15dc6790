package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/pkg/logger"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMulti_DeliversToEverySink(t *testing.T) {
	var a, b Recorder
	sink := Multi{&a, nil, &b}

	sink.Emit(models.SecurityEvent{Type: models.EventLoginSuccess})

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

func TestFilter(t *testing.T) {
	var rec Recorder
	sink := Filter(&rec, func(e models.SecurityEvent) bool {
		return e.Type == models.EventAccountLocked
	})

	sink.Emit(models.SecurityEvent{Type: models.EventLoginFailure})
	sink.Emit(models.SecurityEvent{Type: models.EventAccountLocked})

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventAccountLocked, events[0].Type)
}

func TestStamp(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	var rec Recorder
	sink := Stamp(&rec, clk)

	sink.Emit(models.SecurityEvent{Type: models.EventLoginFailure})
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sink.Emit(models.SecurityEvent{ID: "keep", Type: models.EventLoginSuccess, Timestamp: fixed})

	evs := rec.Events()
	require.Len(t, evs, 2)
	assert.NotEmpty(t, evs[0].ID)
	assert.Equal(t, clk.Now(), evs[0].Timestamp)
	assert.Equal(t, "keep", evs[1].ID)
	assert.Equal(t, fixed, evs[1].Timestamp)
}

func TestAsync_DeliversAndDrainsOnClose(t *testing.T) {
	var rec Recorder
	async := NewAsync(&rec, 16, testLogger())

	for i := 0; i < 10; i++ {
		async.Emit(models.SecurityEvent{Type: models.EventLoginFailure, RiskScore: i})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, async.Close(ctx))

	assert.Len(t, rec.Events(), 10)
	assert.Equal(t, int64(0), async.Dropped())
}

func TestAsync_DropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	var delivered sync.WaitGroup
	delivered.Add(1)
	var once sync.Once

	blocking := SinkFunc(func(models.SecurityEvent) {
		once.Do(delivered.Done)
		<-release
	})
	async := NewAsync(blocking, 1, testLogger())

	// first event is taken by the worker, second fills the queue
	async.Emit(models.SecurityEvent{Type: models.EventLoginFailure})
	delivered.Wait()
	async.Emit(models.SecurityEvent{Type: models.EventLoginFailure})
	async.Emit(models.SecurityEvent{Type: models.EventLoginFailure})
	async.Emit(models.SecurityEvent{Type: models.EventLoginFailure})

	assert.Equal(t, int64(2), async.Dropped())

	close(release)
	require.NoError(t, async.Close(context.Background()))
}

func TestAsync_EmitAfterCloseIsDropped(t *testing.T) {
	var rec Recorder
	async := NewAsync(&rec, 4, testLogger())
	require.NoError(t, async.Close(context.Background()))

	async.Emit(models.SecurityEvent{Type: models.EventLoginSuccess})

	assert.Empty(t, rec.Events())
	assert.Equal(t, int64(1), async.Dropped())
}

func TestAsync_RecoversFromPanickingSink(t *testing.T) {
	var rec Recorder
	calls := 0
	sink := SinkFunc(func(e models.SecurityEvent) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		rec.Emit(e)
	})
	async := NewAsync(sink, 4, testLogger())

	async.Emit(models.SecurityEvent{Type: models.EventLoginFailure})
	async.Emit(models.SecurityEvent{Type: models.EventLoginSuccess})
	require.NoError(t, async.Close(context.Background()))

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventLoginSuccess, events[0].Type)
}

func TestAsync_CloseHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	async := NewAsync(SinkFunc(func(models.SecurityEvent) { <-release }), 4, testLogger())
	async.Emit(models.SecurityEvent{Type: models.EventLoginFailure})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := async.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type fakeStore struct {
	err    error
	events []models.SecurityEvent
}

func (s *fakeStore) Create(_ context.Context, event *models.SecurityEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, *event)
	return nil
}

func TestRepositorySink(t *testing.T) {
	store := &fakeStore{}
	sink := NewRepositorySink(store, 0, testLogger())

	sink.Emit(models.SecurityEvent{Type: models.EventAccountLocked, Identity: "alice"})

	require.Len(t, store.events, 1)
	assert.Equal(t, "alice", store.events[0].Identity)
}

func TestRepositorySink_SwallowsErrors(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	sink := NewRepositorySink(store, time.Second, testLogger())

	assert.NotPanics(t, func() {
		sink.Emit(models.SecurityEvent{Type: models.EventAccountLocked})
	})
}

type fakeAlerter struct {
	sent []models.SecurityEvent
	err  error
}

func (a *fakeAlerter) SendSecurityAlert(_ context.Context, event models.SecurityEvent) error {
	a.sent = append(a.sent, event)
	return a.err
}

func TestAlertSink_ShouldAlert(t *testing.T) {
	sink := NewAlertSink(&fakeAlerter{}, 80, testLogger())

	tests := []struct {
		name  string
		event models.SecurityEvent
		want  bool
	}{
		{"account locked", models.SecurityEvent{Type: models.EventAccountLocked}, true},
		{"privilege escalation", models.SecurityEvent{Type: models.EventPrivilegeEscalationAttempt}, true},
		{"high risk suspicious", models.SecurityEvent{Type: models.EventSuspiciousActivity, RiskScore: 85}, true},
		{"low risk suspicious", models.SecurityEvent{Type: models.EventSuspiciousActivity, RiskScore: 40}, false},
		{"login failure", models.SecurityEvent{Type: models.EventLoginFailure}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sink.ShouldAlert(tt.event))
		})
	}
}

func TestAlertSink_Emit(t *testing.T) {
	alerter := &fakeAlerter{err: errors.New("throttled")}
	sink := NewAlertSink(alerter, 80, testLogger())

	sink.Emit(models.SecurityEvent{Type: models.EventLoginSuccess})
	sink.Emit(models.SecurityEvent{Type: models.EventAccountLocked})

	require.Len(t, alerter.sent, 1)
	assert.Equal(t, models.EventAccountLocked, alerter.sent[0].Type)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(logger.NewSecurityLogger(slog.New(slog.NewJSONHandler(&buf, nil)), "development"))

	sink.Emit(models.SecurityEvent{Type: models.EventAccountUnlocked, Identity: "alice", Metadata: models.EventMetadata{"reason": "manual"}})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "INFO", line["level"])
	assert.Equal(t, "ACCOUNT_UNLOCKED", line["event_type"])
	assert.Equal(t, "alice", line["identity"])
}
