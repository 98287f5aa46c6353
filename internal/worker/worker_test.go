package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"zapis/internal/config"
	"zapis/internal/database"
	"zapis/internal/google"
	"zapis/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) UpsertAppointment(ctx context.Context, entry *models.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockLedger) UpdateAppointmentStatus(ctx context.Context, appointmentID string, status models.AppointmentStatus) error {
	args := m.Called(ctx, appointmentID, status)
	return args.Error(0)
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	require.NoError(t, row.Scan(&status, &retryCount, &nextRetry))
	return status, retryCount, nextRetry
}

func testEntry(id string) *models.LedgerEntry {
	start := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	return &models.LedgerEntry{
		Appointment: models.Appointment{
			ID:        id,
			ShopID:    "shop-1",
			StaffID:   "s1",
			ServiceID: "cut",
			StartTime: start,
			EndTime:   start.Add(30 * time.Minute),
			Status:    models.StatusConfirmed,
		},
		ShopName:  "Barbearia Centro",
		StaffName: "Ana",
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	ledger := new(mockLedger)
	ledger.On("UpsertAppointment", mock.Anything, mock.MatchedBy(func(e *models.LedgerEntry) bool {
		return e.Appointment.ID == "appt-1" && e.StaffName == "Ana"
	})).Return(nil).Once()
	w := NewSheetsWorker(db, ledger, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, "appt-1", testEntry("appt-1"), ""))

	task, ok := w.tryLocalQueue()
	require.True(t, ok, "expected task in local queue")
	w.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusCompleted, status)
	assert.Equal(t, 0, retryCount)
	assert.False(t, nextRetry.Valid)
	ledger.AssertExpectations(t)

	// повторная доставка той же задачи не пишет в журнал второй раз
	w.processTask(ctx, &task)
	ledger.AssertNumberOfCalls(t, "UpsertAppointment", 1)
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	ledger := new(mockLedger)
	ledger.On("UpsertAppointment", mock.Anything, mock.Anything).Return(errors.New("boom"))
	w := NewSheetsWorker(db, ledger, nil, RetryPolicy{MaxAttempts: 3, InitialDelay: time.Second}, nil)

	ctx := context.Background()
	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, "appt-2", testEntry("appt-2"), ""))

	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	w.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusRetry, status)
	assert.Equal(t, 1, retryCount)
	require.True(t, nextRetry.Valid)
	assert.True(t, nextRetry.Time.After(time.Now()))

	// задача с отложенным повтором не попадает в выборку раньше времени
	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessTaskFailGoesToDeadLetter(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ledger := new(mockLedger)
	ledger.On("UpsertAppointment", mock.Anything, mock.Anything).Return(errors.New("fatal"))
	w := NewSheetsWorker(db, ledger, client, RetryPolicy{MaxAttempts: 1}, nil)

	ctx := context.Background()
	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, "appt-3", testEntry("appt-3"), ""))

	task, ok := w.tryRedis(ctx)
	require.True(t, ok, "expected task in redis queue")
	w.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusFailed, status)

	dead, err := mr.List(deadLetterKey)
	require.NoError(t, err)
	require.Len(t, dead, 1)

	var deadTask models.SyncTask
	require.NoError(t, json.Unmarshal([]byte(dead[0]), &deadTask))
	assert.Equal(t, "appt-3", deadTask.AppointmentID)

	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestProcessTaskBadPayload(t *testing.T) {
	db := newTestDB(t)
	w := NewSheetsWorker(db, new(mockLedger), nil, RetryPolicy{}, nil)

	ctx := context.Background()
	task := models.SyncTask{TaskType: models.SyncTaskUpsert, AppointmentID: "x", Payload: "invalid json"}
	require.NoError(t, db.CreateSyncTask(ctx, &task))

	w.processTask(ctx, &task)
	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusFailed, status)
}

func TestSheetsWorker_HandleSheetTask(t *testing.T) {
	ctx := context.Background()

	t.Run("Upsert", func(t *testing.T) {
		ledger := new(mockLedger)
		ledger.On("UpsertAppointment", ctx, mock.Anything).Return(nil).Once()
		w := NewSheetsWorker(nil, ledger, nil, RetryPolicy{}, nil)

		require.NoError(t, w.handleSheetTask(ctx, models.SyncTaskUpsert, sheetTaskPayload{Entry: testEntry("a")}))
		assert.Error(t, w.handleSheetTask(ctx, models.SyncTaskUpsert, sheetTaskPayload{AppointmentID: "a"}))
		ledger.AssertExpectations(t)
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		ledger := new(mockLedger)
		ledger.On("UpdateAppointmentStatus", ctx, "a", models.StatusCancelledByClient).Return(nil).Once()
		w := NewSheetsWorker(nil, ledger, nil, RetryPolicy{}, nil)

		err := w.handleSheetTask(ctx, models.SyncTaskUpdateStatus, sheetTaskPayload{AppointmentID: "a", Status: models.StatusCancelledByClient})
		require.NoError(t, err)
		assert.Error(t, w.handleSheetTask(ctx, models.SyncTaskUpdateStatus, sheetTaskPayload{AppointmentID: "a"}))
		ledger.AssertExpectations(t)
	})

	t.Run("UpdateStatusMissingRowUpserts", func(t *testing.T) {
		ledger := new(mockLedger)
		ledger.On("UpdateAppointmentStatus", ctx, "a", models.StatusNoShow).Return(google.ErrRowNotFound).Once()
		ledger.On("UpsertAppointment", ctx, mock.MatchedBy(func(e *models.LedgerEntry) bool {
			return e.Appointment.Status == models.StatusNoShow
		})).Return(nil).Once()
		w := NewSheetsWorker(nil, ledger, nil, RetryPolicy{}, nil)

		err := w.handleSheetTask(ctx, models.SyncTaskUpdateStatus, sheetTaskPayload{
			AppointmentID: "a",
			Entry:         testEntry("a"),
			Status:        models.StatusNoShow,
		})
		require.NoError(t, err)
		ledger.AssertExpectations(t)
	})

	t.Run("UnknownType", func(t *testing.T) {
		w := NewSheetsWorker(nil, new(mockLedger), nil, RetryPolicy{}, nil)
		assert.Error(t, w.handleSheetTask(ctx, "delete", sheetTaskPayload{AppointmentID: "a"}))
	})
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	assert.Equal(t, 5*time.Second, policy.NextDelay(5))
	assert.Equal(t, 2*time.Second, RetryPolicy{}.NextDelay(0))
}

func TestRetryPolicyFromConfig(t *testing.T) {
	t.Run("Configured", func(t *testing.T) {
		policy := RetryPolicyFromConfig(config.LedgerRetryConfig{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     3 * time.Second,
			Multiplier:   3,
		})

		assert.Equal(t, 500*time.Millisecond, policy.NextDelay(1))
		assert.Equal(t, 1500*time.Millisecond, policy.NextDelay(2))
		assert.Equal(t, 3*time.Second, policy.NextDelay(3))
		assert.False(t, policy.Exhausted(2))
		assert.True(t, policy.Exhausted(3))
	})

	t.Run("ZeroTakesDefaults", func(t *testing.T) {
		policy := RetryPolicyFromConfig(config.LedgerRetryConfig{})

		assert.Equal(t, RetryPolicy{
			MaxAttempts:  models.LedgerMaxAttempts,
			InitialDelay: 2 * time.Second,
			MaxDelay:     time.Minute,
			Multiplier:   2,
		}, policy)
		assert.Equal(t, time.Minute, policy.NextDelay(20))
		assert.True(t, policy.Exhausted(5))
	})
}

func TestSheetsWorker_EnqueueTask(t *testing.T) {
	db := newTestDB(t)
	w := NewSheetsWorker(db, new(mockLedger), nil, RetryPolicy{}, nil)
	ctx := context.Background()

	t.Run("ValidTask", func(t *testing.T) {
		require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpdateStatus, "appt-4", nil, models.StatusCompleted))

		task, ok := w.tryLocalQueue()
		require.True(t, ok)
		payload, err := w.decodePayload(task.Payload)
		require.NoError(t, err)
		assert.Equal(t, "appt-4", payload.AppointmentID)
		assert.Equal(t, models.StatusCompleted, payload.Status)
	})

	t.Run("IDFromEntry", func(t *testing.T) {
		require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, "", testEntry("appt-5"), ""))
		task, ok := w.tryLocalQueue()
		require.True(t, ok)
		assert.Equal(t, "appt-5", task.AppointmentID)
	})

	t.Run("InvalidTaskType", func(t *testing.T) {
		assert.Error(t, w.EnqueueTask(ctx, "", "appt-1", nil, ""))
	})

	t.Run("MissingAppointmentID", func(t *testing.T) {
		assert.Error(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, "", nil, ""))
	})
}

func TestSheetsWorker_RedisDownFallsBackToMemory(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	w := NewSheetsWorker(db, new(mockLedger), client, RetryPolicy{}, nil)
	require.NoError(t, w.EnqueueTask(context.Background(), models.SyncTaskUpsert, "appt-6", testEntry("appt-6"), ""))

	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	assert.Equal(t, "appt-6", task.AppointmentID)
}

func TestSheetsWorker_StartDrainsPolledTasks(t *testing.T) {
	db := newTestDB(t)
	done := make(chan struct{})
	ledger := new(mockLedger)
	ledger.On("UpsertAppointment", mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) {
		close(done)
	}).Once()
	w := NewSheetsWorker(db, ledger, nil, RetryPolicy{}, nil)
	w.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// задача есть только в БД, очередь пуста
	payload, err := json.Marshal(sheetTaskPayload{AppointmentID: "appt-7", Entry: testEntry("appt-7")})
	require.NoError(t, err)
	task := models.SyncTask{TaskType: models.SyncTaskUpsert, AppointmentID: "appt-7", Payload: string(payload)}
	require.NoError(t, db.CreateSyncTask(ctx, &task))

	stopped := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(stopped)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task was not processed")
	}
	require.Eventually(t, func() bool {
		current, err := db.GetSyncTask(context.Background(), task.ID)
		return err == nil && current.Status == models.SyncStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-stopped
}
