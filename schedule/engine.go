// Package schedule is the gym hall scheduling engine: conflict detection,
// availability search, team assignment of recurring time slots, the booking
// lifecycle and reporting.
package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hallbook/storage"
)

type EventType string

const (
	EventBookingCreated   EventType = "booking.created"
	EventBookingConfirmed EventType = "booking.confirmed"
	EventBookingAttended  EventType = "booking.attended"
	EventBookingReleased  EventType = "booking.released"
	EventBookingClaimed   EventType = "booking.claimed"
	EventBookingCanceled  EventType = "booking.canceled"
	EventBookingCompleted EventType = "booking.completed"
	EventBookingNoShow    EventType = "booking.no_show"
)

// Event is a booking lifecycle change handed to notification collaborators
// after the change has been committed.
type Event struct {
	Type       EventType       `json:"event"`
	Version    int             `json:"version"`
	OccurredAt time.Time       `json:"occurred_at"`
	ActorID    string          `json:"actor_id,omitempty"`
	Booking    storage.Booking `json:"booking"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

type Option func(*options)

type options struct {
	logger   *zap.Logger
	notifier Notifier
	now      func() time.Time
	newID    func() string
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithClock replaces time.Now for audit stamps and lifecycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

func newOptions(opts []Option) *options {
	o := &options{
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) emit(ctx context.Context, events []Event) {
	if o.notifier == nil {
		return
	}
	for _, event := range events {
		if err := o.notifier.Notify(ctx, event); err != nil {
			o.logger.Warn("notify failed",
				zap.String("event", string(event.Type)),
				zap.String("booking_id", event.Booking.ID),
				zap.Error(err),
			)
		}
	}
}

func (o *options) event(t EventType, b storage.Booking, actorID string) Event {
	return Event{Type: t, Version: 1, OccurredAt: o.now().UTC(), ActorID: actorID, Booking: b}
}

// Engine wires the five services over one database.
type Engine struct {
	Conflicts   *ConflictDetector
	Optimizer   *ScheduleOptimizer
	Assignments *AssignmentService
	Bookings    *BookingService
	Statistics  *StatisticsService
}

func New(db *storage.DB, opts ...Option) *Engine {
	o := newOptions(opts)
	conflicts := &ConflictDetector{db: db}
	assignments := &AssignmentService{db: db, opts: o}
	return &Engine{
		Conflicts:   conflicts,
		Optimizer:   &ScheduleOptimizer{db: db, conflicts: conflicts, assignments: assignments, opts: o},
		Assignments: assignments,
		Bookings:    &BookingService{db: db, opts: o},
		Statistics:  &StatisticsService{db: db, assignments: assignments, opts: o},
	}
}
