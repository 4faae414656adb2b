package bridge

import (
	"context"
	"log"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"github.com/Taufiq-1904/WeighBridge-IoT/config"
	"github.com/Taufiq-1904/WeighBridge-IoT/internal/broker"
	"github.com/Taufiq-1904/WeighBridge-IoT/internal/history"
	"github.com/Taufiq-1904/WeighBridge-IoT/internal/notification"
	"github.com/Taufiq-1904/WeighBridge-IoT/internal/state"
)

// Service is the relay engine: it drives the broker link and folds its
// streams into the state store, the history sink, and the alert pool.
type Service struct {
	cfg        *config.Config
	states     *state.Store
	link       *broker.Link
	history    *history.Sink
	workerPool *notification.WorkerPool
}

// NewService wires the relay around an existing state store and broker link.
func NewService(cfg *config.Config, states *state.Store, link *broker.Link, db *gorm.DB) *Service {
	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	return &Service{
		cfg:        cfg,
		states:     states,
		link:       link,
		history:    history.NewSink(db, &cfg.History),
		workerPool: notification.NewWorkerPool(cfg.WorkerPool.Size, db, &webpushOptions),
	}
}

// Run starts the broker link and consumes its streams until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	log.Println("Starting bridge service...")

	s.history.Start(ctx)
	s.workerPool.Start(ctx)
	go s.link.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("Bridge service shutting down.")
			return
		case up := <-s.link.ConnectionChanges():
			s.states.SetBrokerConnected(up)
		case msg := <-s.link.Messages():
			s.apply(msg)
		}
	}
}

// apply folds one broker message into the state store and feeds the
// downstream consumers. Parse failures are logged and absorbed here.
func (s *Service) apply(msg broker.Message) {
	change, err := s.states.Apply(msg.Topic, msg.Payload)
	if err != nil {
		log.Printf("bridge: discarded message on %s: %v", msg.Topic, err)
		return
	}

	switch msg.Topic {
	case s.cfg.MQTT.WeightTopic:
		if change.State.Weight != nil {
			s.history.Record(history.Sample{
				Weight:     *change.State.Weight,
				ObservedAt: change.State.UpdatedAt,
			})
		}
	case s.cfg.MQTT.StatusTopic:
		if change.State.Status != nil {
			s.workerPool.Dispatch(*change.State.Status)
		}
	}
}
