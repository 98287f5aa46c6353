package models

const (
	// DefaultSlotStepMinutes шаг сетки слотов, не зависит от длительности услуги
	DefaultSlotStepMinutes = 30

	// FreePlanMonthlyBookings лимит записей в месяц для бесплатного тарифа
	FreePlanMonthlyBookings = 20

	// DefaultMaxAdvanceDays горизонт записи вперед в днях
	DefaultMaxAdvanceDays = 90

	// DefaultStaffLockTTL время жизни блокировки мастера при записи
	DefaultStaffLockTTL = 10 // секунд

	// DefaultSlotCacheTTL время жизни кэша слотов
	DefaultSlotCacheTTL = 5 * 60 // 5 минут в секундах

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// LedgerMaxAttempts попыток записи в Google Sheets до failed
	LedgerMaxAttempts = 5

	// LedgerRetryInitialDelay первая пауза перед повтором
	LedgerRetryInitialDelay = 2 // секунд

	// LedgerRetryMaxDelay потолок паузы между повторами
	LedgerRetryMaxDelay = 60 // секунд

	// LedgerRetryMultiplier рост паузы с каждой попыткой
	LedgerRetryMultiplier = 2

	// DefaultListLimit размер страницы списка записей
	DefaultListLimit = 100

	// LedgerCacheTTL время жизни кэша строк Google Sheets
	LedgerCacheTTL = 60 * 60 // 1 час в секундах
)

// Sync task types.
const (
	SyncTaskUpsert       = "upsert"
	SyncTaskUpdateStatus = "update_status"
)

// Sync task statuses.
const (
	SyncStatusPending    = "pending"
	SyncStatusProcessing = "processing"
	SyncStatusRetry      = "retry"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
)
