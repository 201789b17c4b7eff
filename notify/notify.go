// Package notify delivers booking lifecycle events to external collaborators.
// Every sink implements schedule.Notifier.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"hallbook/schedule"
	"hallbook/storage"
)

// Multi fans an event out to every sink. All sinks are tried; their errors are
// joined.
type Multi []schedule.Notifier

func (m Multi) Notify(ctx context.Context, event schedule.Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes each event as one structured log line.
type LogNotifier struct {
	Logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{Logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, event schedule.Event) error {
	b := event.Booking
	l.Logger.Info("booking event",
		zap.String("event", string(event.Type)),
		zap.String("booking_id", b.ID),
		zap.String("venue_id", b.VenueID),
		zap.String("team_id", b.TeamID),
		zap.String("date", storage.FormatDate(b.Date)),
		zap.String("window", b.Window().String()),
		zap.String("status", string(b.Status)),
		zap.String("actor_id", event.ActorID),
	)
	return nil
}

// RoutingKey maps an event to its topic, e.g. "booking.released.v1".
func RoutingKey(event schedule.Event) string {
	version := event.Version
	if version == 0 {
		version = 1
	}
	return fmt.Sprintf("%s.v%d", event.Type, version)
}

// Summary renders an event as a single human readable line.
func Summary(event schedule.Event) string {
	b := event.Booking
	line := fmt.Sprintf("%s: team %s at venue %s on %s %s",
		event.Type, b.TeamID, b.VenueID, storage.FormatDate(b.Date), b.Window())
	if b.CourtID != "" {
		line += " (court " + b.CourtID + ")"
	}
	if event.Type == schedule.EventBookingClaimed && b.OriginalTeamID != "" && b.OriginalTeamID != b.TeamID {
		line += ", released by " + b.OriginalTeamID
	}
	return line
}
