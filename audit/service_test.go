package audit

import (
	"context"
	"testing"
	"time"

	"github.com/agriapp/server/model"
	"github.com/agriapp/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func stop(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(ctx))
}

func TestLog_EnqueuedAndFlushed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, zap.NewNop())

	svc.Log(Entry{
		TraceID:    "trace-123",
		UserID:     "42",
		ProgressID: "p-1",
		Action:     "progress.complete_milestone",
		Request:    map[string]string{"milestone_id": "m1"},
		IP:         "127.0.0.1",
		Duration:   42 * time.Millisecond,
	})
	stop(t, svc)

	var logs []model.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "trace-123", logs[0].TraceID)
	assert.Equal(t, "42", logs[0].UserID)
	assert.Equal(t, "p-1", logs[0].ProgressID)
	assert.Equal(t, "progress.complete_milestone", logs[0].Action)
	assert.JSONEq(t, `{"milestone_id":"m1"}`, string(logs[0].Request))
	assert.Equal(t, "127.0.0.1", logs[0].IP)
	assert.Equal(t, 42, logs[0].DurationMs)
}

func TestLog_ManyEntriesAcrossBatches(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, zap.NewNop())

	for i := 0; i < 250; i++ {
		svc.Log(Entry{Action: "progress.like", Error: "boom"})
	}
	stop(t, svc)

	var count int64
	require.NoError(t, db.Model(&model.AuditLog{}).Count(&count).Error)
	assert.Equal(t, int64(250), count)
}

func TestLog_TimerFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, zap.NewNop())
	defer stop(t, svc)

	svc.Log(Entry{Action: "timer_test"})

	assert.Eventually(t, func() bool {
		var count int64
		db.Model(&model.AuditLog{}).Count(&count)
		return count == 1
	}, 4*time.Second, 100*time.Millisecond)
}

func TestStop_IdempotentAndNoLeak(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	svc := New(db, zap.NewNop())
	stop(t, svc)
	stop(t, svc)

	svc.Log(Entry{Action: "after_stop"}) // dropped, must not panic
	var count int64
	require.NoError(t, db.Model(&model.AuditLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestLog_NilRequest(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, zap.NewNop())

	svc.Log(Entry{Action: "no_body"})
	stop(t, svc)

	var logs []model.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Empty(t, logs[0].Request)
}

func TestLog_DropsWhenFull(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, zap.NewNop())

	for i := 0; i < queueSize+50; i++ {
		svc.Log(Entry{Action: "flood"})
	}
	stop(t, svc)

	var count int64
	require.NoError(t, db.Model(&model.AuditLog{}).Count(&count).Error)
	assert.LessOrEqual(t, count, int64(queueSize+50))
	assert.Positive(t, count)
}
