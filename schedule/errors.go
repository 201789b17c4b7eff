package schedule

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"hallbook/storage"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrCapacity     = errors.New("capacity conflict")
	ErrUnauthorized = errors.New("authorization denied")
	ErrNotFound     = errors.New("not found")
	// ErrConcurrency marks a commit that lost against a competing write. The
	// operation can be retried as is.
	ErrConcurrency = errors.New("concurrent update")
)

const (
	CodeRequired            = "required"
	CodeInvalidRange        = "invalid_range"
	CodeDayClosed           = "day_closed"
	CodeStartBeforeOpening  = "start_before_opening"
	CodeEndAfterClosing     = "end_after_closing"
	CodeInvalidCourt        = "invalid_court"
	CodeOutsideTemplate     = "outside_template"
	CodeWrongDay            = "wrong_day"
	CodeTemplateInactive    = "template_inactive"
	CodeTeamClubMismatch    = "team_club_mismatch"
	CodeParallelUnsupported = "parallel_not_supported"
	CodeInvalidTransition   = "invalid_transition"
	CodeOwnRelease          = "own_release"
)

// ValidationError is one field-level problem with a request.
type ValidationError struct {
	Field string `json:"field"`
	Code  string `json:"code"`
	Ref   string `json:"ref,omitempty"`
}

func (e ValidationError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Field, e.Code, e.Ref)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Code)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

// Err returns nil for an empty list so callers can write `return errs.Err()`.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func invalid(field, code, ref string) ValidationErrors {
	return ValidationErrors{{Field: field, Code: code, Ref: ref}}
}

type ConflictType string

const (
	ConflictTimeOverlap     ConflictType = "time_overlap"
	ConflictCapacity        ConflictType = "capacity_exceeded"
	ConflictCourtBusy       ConflictType = "court_busy"
	ConflictAlreadyAssigned ConflictType = "already_assigned"
	ConflictDuplicate       ConflictType = "duplicate_booking"
	ConflictNoCourt         ConflictType = "no_free_court"
)

// Conflict names the state that blocks a request.
type Conflict struct {
	Type            ConflictType   `json:"type"`
	OtherTemplateID string         `json:"other_template_id,omitempty"`
	OtherBookingID  string         `json:"other_booking_id,omitempty"`
	OtherSegmentID  string         `json:"other_segment_id,omitempty"`
	TeamID          string         `json:"team_id,omitempty"`
	CourtID         string         `json:"court_id,omitempty"`
	Window          storage.Window `json:"window"`
}

type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		ref := c.OtherTemplateID + c.OtherBookingID + c.OtherSegmentID + c.CourtID
		if ref == "" {
			ref = c.TeamID
		}
		parts = append(parts, fmt.Sprintf("%s %s [%s]", c.Type, ref, c.Window))
	}
	return "capacity conflict: " + strings.Join(parts, "; ")
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrCapacity
}

func conflictErr(conflicts ...Conflict) error {
	return &ConflictError{Conflicts: conflicts}
}

func unauthorized(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

// translate maps storage failures onto the engine taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrBusy):
		return fmt.Errorf("%w: %w", ErrConcurrency, err)
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

var validate = validator.New()

// validateInput runs struct tag validation and converts the result.
func validateInput(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{Field: toSnake(fe.Field()), Code: fe.Tag(), Ref: fe.Param()})
	}
	return out
}

func toSnake(name string) string {
	var b strings.Builder
	var prev rune
	for _, r := range name {
		if r >= 'A' && r <= 'Z' {
			if (prev >= 'a' && prev <= 'z') || (prev >= '0' && prev <= '9') {
				b.WriteByte('_')
			}
			b.WriteRune(r + 'a' - 'A')
		} else {
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}
