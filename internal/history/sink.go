package history

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/Taufiq-1904/WeighBridge-IoT/config"
	"github.com/Taufiq-1904/WeighBridge-IoT/internal/model"
)

// Sample is one validated scale reading destined for durable storage.
type Sample struct {
	Weight     float64
	ObservedAt time.Time
}

// Sink persists telemetry samples off the hot path. Record never blocks the
// caller: persistence is best-effort, and a slow or unavailable database must
// not stall the broker message loop.
type Sink struct {
	db         *gorm.DB
	samples    chan Sample
	maxRetries int
	retryDelay time.Duration
}

// NewSink creates a sink writing to the weight history table.
func NewSink(db *gorm.DB, cfg *config.HistoryConfig) *Sink {
	return &Sink{
		db:         db,
		samples:    make(chan Sample, cfg.BufferSize),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

// Start launches the writer goroutine.
func (s *Sink) Start(ctx context.Context) {
	go s.worker(ctx)
}

// Record enqueues a sample for persistence. On a full buffer the sample is
// dropped and logged.
func (s *Sink) Record(sample Sample) {
	select {
	case s.samples <- sample:
	default:
		log.Printf("history: buffer full, dropped sample weight=%.2f", sample.Weight)
	}
}

func (s *Sink) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Println("history: writer shutting down")
			return
		case sample := <-s.samples:
			s.persist(ctx, sample)
		}
	}
}

// persist writes one sample, retrying a bounded number of times before
// dropping it. Failures stay local to the sink.
func (s *Sink) persist(ctx context.Context, sample Sample) {
	record := model.WeightRecord{
		Weight:     sample.Weight,
		ObservedAt: sample.ObservedAt,
	}

	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryDelay):
			}
		}
		if err = s.db.WithContext(ctx).Create(&record).Error; err == nil {
			return
		}
		log.Printf("history: write attempt %d failed: %v", attempt+1, err)
	}
	log.Printf("history: giving up on sample weight=%.2f after %d retries: %v",
		sample.Weight, s.maxRetries, err)
}
