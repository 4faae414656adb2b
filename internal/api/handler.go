package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"github.com/Taufiq-1904/WeighBridge-IoT/internal/command"
	"github.com/Taufiq-1904/WeighBridge-IoT/internal/state"
)

// CommandDispatcher is the surface the command endpoint calls.
type CommandDispatcher interface {
	Dispatch(req command.Request) error
}

// StateReader provides the current device snapshot.
type StateReader interface {
	Snapshot() state.DeviceState
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	db         *gorm.DB
	states     StateReader
	dispatcher CommandDispatcher
	webpush    *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(db *gorm.DB, states StateReader, dispatcher CommandDispatcher, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		db:         db,
		states:     states,
		dispatcher: dispatcher,
		webpush:    webpushOptions,
	}
}
