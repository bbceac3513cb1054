package paysim

import (
	"errors"

	"github.com/xraph/paysim/delivery"
	"github.com/xraph/paysim/scheduler"
	"github.com/xraph/paysim/store"
	"github.com/xraph/paysim/webhook"
)

// Sentinel errors returned by Engine operations.
var (
	// ErrNoStore is returned when an Engine is created without a store.
	ErrNoStore = errors.New("paysim: store is required")

	// ErrInvalidEvent is returned when an event is published without a type.
	ErrInvalidEvent = errors.New("paysim: invalid event")

	ErrWebhookNotFound = webhook.ErrNotFound
	ErrLogNotFound     = delivery.ErrLogNotFound
	ErrEventNotFound   = delivery.ErrEventNotFound
	ErrObjectNotFound  = store.ErrNotFound

	ErrTimeout    = delivery.ErrTimeout
	ErrTransport  = delivery.ErrTransport
	ErrUnexpected = delivery.ErrUnexpected

	ErrCallback      = scheduler.ErrCallback
	ErrRunning       = scheduler.ErrRunning
	ErrDuplicateTask = scheduler.ErrDuplicateTask
)
