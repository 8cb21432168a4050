package latency_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/agora/latency"
	"github.com/BaSui01/agora/store"
	"github.com/BaSui01/agora/testutil"
	"github.com/BaSui01/agora/types"
)

// memorySink 记录所有写入
type memorySink struct {
	mu      sync.Mutex
	records []latency.Record
	err     error
	block   chan struct{}
}

func (s *memorySink) Write(ctx context.Context, r latency.Record) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, r)
	return nil
}

func (s *memorySink) snapshot() []latency.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]latency.Record(nil), s.records...)
}

func closeTracker(t *testing.T, tr *latency.Tracker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.Close(ctx))
}

// =============================================================================
// 🧪 Tracker 测试
// =============================================================================

func TestTracker_RecordsSuccess(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &memorySink{}
	tr := latency.NewTracker(sink, zap.NewNop())

	ctx := types.WithPersonaID(types.WithRoomID(context.Background(), 7), 3)
	err := tr.Track(ctx, latency.Op{
		Operation: latency.OpLLMComplete,
		Model:     "gpt-4o",
		Service:   "openai",
		Metadata:  map[string]any{"structured": true},
	}, func(ctx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	closeTracker(t, tr)

	records := sink.snapshot()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, latency.OpLLMComplete, rec.Operation)
	assert.Equal(t, "gpt-4o", rec.Model)
	assert.Equal(t, "openai", rec.Service)
	assert.True(t, rec.Success)
	assert.Empty(t, rec.Error)
	assert.Equal(t, uint(7), rec.RoomID)
	assert.Equal(t, uint(3), rec.PersonaID)
	assert.GreaterOrEqual(t, rec.Duration, 5*time.Millisecond)
	assert.Equal(t, true, rec.Metadata["structured"])
}

func TestTracker_ReturnsErrorUnchanged(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &memorySink{}
	tr := latency.NewTracker(sink, zap.NewNop())

	want := types.NewError(types.ErrProvider, "upstream exploded")
	got := tr.Track(context.Background(), latency.Op{Operation: latency.OpLLMComplete}, func(context.Context) error {
		return want
	})
	closeTracker(t, tr)

	assert.Same(t, want, got)
	records := sink.snapshot()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	assert.Contains(t, records[0].Error, "upstream exploded")
}

func TestTracker_SinkFailureDoesNotAffectCaller(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &memorySink{err: errors.New("disk full")}
	tr := latency.NewTracker(sink, zap.NewNop())

	for i := 0; i < 3; i++ {
		err := tr.Track(context.Background(), latency.Op{Operation: "op"}, func(context.Context) error { return nil })
		assert.NoError(t, err)
	}
	closeTracker(t, tr)

	assert.Equal(t, int64(3), tr.Dropped())
}

func TestTracker_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	defer goleak.VerifyNone(t)

	block := make(chan struct{})
	sink := &memorySink{block: block}
	tr := latency.NewTracker(sink, zap.NewNop(), latency.WithQueueSize(1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_ = tr.Track(context.Background(), latency.Op{Operation: "op"}, func(context.Context) error { return nil })
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Track blocked on a stalled sink")
	}

	close(block)
	closeTracker(t, tr)

	assert.Positive(t, tr.Dropped())
	assert.Equal(t, int64(10), tr.Dropped()+int64(len(sink.snapshot())))
}

func TestTracker_ConcurrentTrack(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &memorySink{}
	tr := latency.NewTracker(sink, zap.NewNop(), latency.WithQueueSize(1000))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tr.Track(context.Background(), latency.Op{Operation: "op"}, func(context.Context) error { return nil })
		}()
	}
	wg.Wait()
	closeTracker(t, tr)

	assert.Len(t, sink.snapshot(), 100)
}

func TestTracker_TrackAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := latency.NewTracker(&memorySink{}, zap.NewNop())
	closeTracker(t, tr)
	closeTracker(t, tr)

	called := false
	err := tr.Track(context.Background(), latency.Op{Operation: "op"}, func(context.Context) error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, int64(1), tr.Dropped())
}

func TestTracker_NilTrackerRunsFn(t *testing.T) {
	var tr *latency.Tracker
	called := false
	err := tr.Track(context.Background(), latency.Op{}, func(context.Context) error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)
}

// =============================================================================
// 🧪 Sink 测试
// =============================================================================

func TestGormSink_Write(t *testing.T) {
	st := testutil.NewStore(t)
	sink := latency.NewGormSink(st)

	err := sink.Write(context.Background(), latency.Record{
		Operation: latency.OpLLMComplete,
		Model:     "claude-3-5-haiku-latest",
		Service:   "anthropic",
		Duration:  1500 * time.Millisecond,
		Success:   false,
		Error:     "timeout",
		RoomID:    2,
		PersonaID: 4,
		Metadata:  map[string]any{"attempt": 1},
		At:        time.Now(),
	})
	require.NoError(t, err)

	var rows []store.LatencyLog
	require.NoError(t, st.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1500), rows[0].DurationMs)
	assert.Equal(t, "timeout", rows[0].Error)
	assert.JSONEq(t, `{"attempt":1}`, rows[0].Metadata)
}

func TestGormSink_WriteFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "latency_logs"`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	sink := latency.NewGormSink(store.New(gormDB))
	err = sink.Write(context.Background(), latency.Record{Operation: "op", At: time.Now()})
	assert.Error(t, err)
}

func TestMultiSink_JoinsErrors(t *testing.T) {
	ok := &memorySink{}
	failing := &memorySink{err: errors.New("boom")}

	err := latency.MultiSink{ok, failing}.Write(context.Background(), latency.Record{Operation: "op"})
	assert.ErrorContains(t, err, "boom")
	assert.Len(t, ok.snapshot(), 1)
}
