package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/agriapp/server/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	queueSize     = 1024
	batchSize     = 100
	flushInterval = 2 * time.Second
)

// Entry is one mutating API call to be recorded.
type Entry struct {
	TraceID    string
	UserID     string
	ProgressID string
	Action     string
	Request    interface{}
	Error      string
	IP         string
	Duration   time.Duration
}

// Service writes audit entries asynchronously in batches.
type Service struct {
	db       *gorm.DB
	ch       chan *model.AuditLog
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
	logger   *zap.Logger
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.AuditLog, queueSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	go svc.worker()
	return svc
}

// Log enqueues an entry. It never blocks; entries are dropped when the
// queue is full or the service has stopped.
func (svc *Service) Log(entry Entry) {
	var req datatypes.JSON
	if entry.Request != nil {
		b, err := json.Marshal(entry.Request)
		if err != nil {
			svc.logger.Warn("audit request not encodable", zap.String("action", entry.Action), zap.Error(err))
		} else {
			req = datatypes.JSON(b)
		}
	}
	record := &model.AuditLog{
		TraceID:    entry.TraceID,
		UserID:     entry.UserID,
		ProgressID: entry.ProgressID,
		Action:     entry.Action,
		Request:    req,
		Error:      entry.Error,
		IP:         entry.IP,
		DurationMs: int(entry.Duration.Milliseconds()),
	}
	select {
	case <-svc.stopCh:
		return
	default:
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit queue full, dropping entry",
			zap.String("action", entry.Action),
			zap.String("trace_id", entry.TraceID))
	}
}

// Stop flushes queued entries and shuts down the worker. It returns when
// the worker has finished or ctx is done, whichever comes first.
func (svc *Service) Stop(ctx context.Context) error {
	svc.stopOnce.Do(func() { close(svc.stopCh) })
	select {
	case <-svc.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (svc *Service) worker() {
	defer close(svc.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.CreateInBatches(batch, batchSize).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
