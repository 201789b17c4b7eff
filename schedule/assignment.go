package schedule

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"hallbook/storage"
)

// AssignmentService mutates template ownership and segment assignments.
type AssignmentService struct {
	db   *storage.DB
	opts *options
}

type AssignmentView struct {
	ID              string        `json:"id"`
	TemplateID      string        `json:"template_id"`
	TeamID          string        `json:"team_id"`
	TeamName        string        `json:"team_name"`
	DayOfWeek       time.Weekday  `json:"day_of_week"`
	StartTime       storage.Clock `json:"start_time"`
	EndTime         storage.Clock `json:"end_time"`
	DurationMinutes int           `json:"duration_minutes"`
}

type TeamRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Segment is one grid bucket of a template.
type Segment struct {
	StartTime     storage.Clock `json:"start_time"`
	EndTime       storage.Clock `json:"end_time"`
	IsAvailable   bool          `json:"is_available"`
	AssignedTeams []TeamRef     `json:"assigned_teams"`
}

type SegmentInput struct {
	TemplateID string `json:"template_id" validate:"required"`
	TeamID     string `json:"team_id" validate:"required"`
	// DayOfWeek defaults to the template's day.
	DayOfWeek *time.Weekday `json:"day_of_week,omitempty"`
	StartTime storage.Clock `json:"start_time" validate:"gte=0,lte=1440"`
	EndTime   storage.Clock `json:"end_time" validate:"gte=0,lte=1440"`
}

func (s *AssignmentService) audit(ctx context.Context, q *storage.Queries, entity, id, action string, actor storage.Actor, reason string) error {
	return q.InsertAudit(ctx, storage.AuditRecord{
		Entity:    entity,
		EntityID:  id,
		Action:    action,
		ActorID:   actor.UserID,
		ActorName: actor.Name,
		Reason:    reason,
		At:        s.opts.now(),
	})
}

// authorizeTemplate loads a template with its venue and checks that actor
// administers the owning club.
func authorizeTemplate(ctx context.Context, q *storage.Queries, templateID string, actor storage.Actor) (storage.TimeSlotTemplate, storage.Venue, error) {
	t, err := q.GetTemplate(ctx, templateID)
	if err != nil {
		return storage.TimeSlotTemplate{}, storage.Venue{}, err
	}
	venue, err := q.GetVenue(ctx, t.VenueID)
	if err != nil {
		return storage.TimeSlotTemplate{}, storage.Venue{}, err
	}
	if !actor.IsAdminOf(venue.ClubID) {
		return storage.TimeSlotTemplate{}, storage.Venue{}, unauthorized("%s is not an administrator of club %s", actor.UserID, venue.ClubID)
	}
	return t, venue, nil
}

// AssignToTeam gives the whole template to team. Conflict checks are the
// caller's business; see ScheduleOptimizer.AssignTimeSlotToTeam.
func (s *AssignmentService) AssignToTeam(ctx context.Context, templateID, teamID string, actor storage.Actor, reason string) (bool, error) {
	err := s.db.Atomically(ctx, func(tx *storage.Tx) error {
		t, _, err := authorizeTemplate(ctx, tx.Queries, templateID, actor)
		if err != nil {
			return err
		}
		return s.assignTemplate(ctx, tx.Queries, t, teamID, actor, reason)
	})
	if err != nil {
		return false, translate(err)
	}
	s.opts.logger.Info("template assigned",
		zap.String("template_id", templateID),
		zap.String("team_id", teamID),
		zap.String("actor_id", actor.UserID),
	)
	return true, nil
}

func (s *AssignmentService) assignTemplate(ctx context.Context, q *storage.Queries, t storage.TimeSlotTemplate, teamID string, actor storage.Actor, reason string) error {
	now := s.opts.now()
	t.TeamID = teamID
	t.AssignedBy = actor.UserID
	t.AssignedAt = &now
	if err := q.UpdateTemplateAssignment(ctx, t); err != nil {
		return err
	}
	return s.audit(ctx, q, "template", t.ID, "assign", actor, reason)
}

// UnassignFromTeam clears the template's team. Segments are left alone. It
// reports false when the template had no team.
func (s *AssignmentService) UnassignFromTeam(ctx context.Context, templateID string, actor storage.Actor, reason string) (bool, error) {
	changed := false
	err := s.db.Atomically(ctx, func(tx *storage.Tx) error {
		t, _, err := authorizeTemplate(ctx, tx.Queries, templateID, actor)
		if err != nil {
			return err
		}
		if t.TeamID == "" {
			return nil
		}
		t.TeamID = ""
		t.AssignedBy = ""
		t.AssignedAt = nil
		if err := tx.UpdateTemplateAssignment(ctx, t); err != nil {
			return err
		}
		changed = true
		return s.audit(ctx, tx.Queries, "template", t.ID, "unassign", actor, reason)
	})
	if err != nil {
		return false, translate(err)
	}
	return changed, nil
}

// RemoveTeamAssignment hard-deletes one segment of the template. An unknown
// id is not an error: the call reports false so retries are safe.
func (s *AssignmentService) RemoveTeamAssignment(ctx context.Context, templateID, assignmentID string) (bool, error) {
	var removed bool
	err := s.db.Atomically(ctx, func(tx *storage.Tx) error {
		var err error
		removed, err = tx.DeleteSegment(ctx, templateID, assignmentID)
		return err
	})
	if err != nil {
		return false, translate(err)
	}
	if removed {
		s.opts.logger.Info("segment removed", zap.String("template_id", templateID), zap.String("segment_id", assignmentID))
	}
	return removed, nil
}

// DeactivateTeamAssignment soft-ends a segment, keeping it for history. Like
// removal it reports false when nothing matched.
func (s *AssignmentService) DeactivateTeamAssignment(ctx context.Context, templateID, assignmentID string, actor storage.Actor, reason string) (bool, error) {
	var done bool
	err := s.db.Atomically(ctx, func(tx *storage.Tx) error {
		if _, _, err := authorizeTemplate(ctx, tx.Queries, templateID, actor); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return err
		}
		var err error
		done, err = tx.DeactivateSegment(ctx, templateID, assignmentID, s.opts.now())
		if err != nil || !done {
			return err
		}
		return s.audit(ctx, tx.Queries, "segment", assignmentID, "deactivate", actor, reason)
	})
	if err != nil {
		return false, translate(err)
	}
	return done, nil
}

// GetTeamAssignmentsForDay lists the active segments of a template on day.
func (s *AssignmentService) GetTeamAssignmentsForDay(ctx context.Context, templateID string, day time.Weekday) ([]AssignmentView, error) {
	views, err := s.segmentViews(ctx, s.db.Queries, templateID, day, nil)
	return views, translate(err)
}

// GetTeamsAssignedToSegment answers who holds any part of w on day.
func (s *AssignmentService) GetTeamsAssignedToSegment(ctx context.Context, templateID string, day time.Weekday, w storage.Window) ([]AssignmentView, error) {
	views, err := s.segmentViews(ctx, s.db.Queries, templateID, day, &w)
	return views, translate(err)
}

func (s *AssignmentService) segmentViews(ctx context.Context, q *storage.Queries, templateID string, day time.Weekday, within *storage.Window) ([]AssignmentView, error) {
	segments, err := q.ListSegments(ctx, templateID, &day, true)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(segments))
	for _, seg := range segments {
		ids = append(ids, seg.TeamID)
	}
	names, err := q.TeamNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := []AssignmentView{}
	for _, seg := range segments {
		if within != nil && !Overlaps(seg.Window(), *within) {
			continue
		}
		views = append(views, AssignmentView{
			ID:              seg.ID,
			TemplateID:      seg.TemplateID,
			TeamID:          seg.TeamID,
			TeamName:        names[seg.TeamID],
			DayOfWeek:       seg.DayOfWeek,
			StartTime:       seg.StartTime,
			EndTime:         seg.EndTime,
			DurationMinutes: seg.DurationMinutes,
		})
	}
	return views, nil
}

// GetAvailableSegmentsForDay slices the template into increment buckets and
// marks each one taken when an active segment overlaps it. A template whose
// length is not a multiple of increment ends with one shorter bucket.
func (s *AssignmentService) GetAvailableSegmentsForDay(ctx context.Context, templateID string, day time.Weekday, increment int) ([]Segment, error) {
	var out []Segment
	err := s.db.Snapshot(ctx, func(tx *storage.Tx) error {
		t, err := tx.GetTemplate(ctx, templateID)
		if err != nil {
			return err
		}
		if increment <= 0 {
			venue, err := tx.GetVenue(ctx, t.VenueID)
			if err != nil {
				return err
			}
			increment = venue.BookingIncrement
		}
		if increment <= 0 {
			return invalid("increment", CodeInvalidRange, "")
		}
		views, err := s.segmentViews(ctx, tx.Queries, templateID, day, nil)
		if err != nil {
			return err
		}
		out = templateBuckets(t.Window(), increment, views)
		return nil
	})
	return out, translate(err)
}

func templateBuckets(w storage.Window, increment int, views []AssignmentView) []Segment {
	out := []Segment{}
	for start := w.Start; start < w.End; start = start.Add(increment) {
		end := start.Add(increment)
		if end > w.End {
			end = w.End
		}
		bucket := storage.Window{Start: start, End: end}
		seen := map[string]bool{}
		teams := []TeamRef{}
		for _, v := range views {
			if seen[v.TeamID] || !Overlaps(bucket, storage.Window{Start: v.StartTime, End: v.EndTime}) {
				continue
			}
			seen[v.TeamID] = true
			teams = append(teams, TeamRef{ID: v.TeamID, Name: v.TeamName})
		}
		out = append(out, Segment{
			StartTime:     start,
			EndTime:       end,
			IsAvailable:   len(teams) == 0,
			AssignedTeams: teams,
		})
	}
	return out
}

// AssignSegment gives part of a template to a team. Overlapping segments of
// different teams are allowed while the peak concurrency stays within the
// venue's parallel capacity.
func (s *AssignmentService) AssignSegment(ctx context.Context, actor storage.Actor, in SegmentInput) (storage.SegmentAssignment, error) {
	if err := validateInput(in); err != nil {
		return storage.SegmentAssignment{}, err
	}
	var seg storage.SegmentAssignment
	err := s.db.Atomically(ctx, func(tx *storage.Tx) error {
		t, venue, err := authorizeTemplate(ctx, tx.Queries, in.TemplateID, actor)
		if err != nil {
			return err
		}
		if t.Status != storage.SlotActive {
			return invalid("template_id", CodeTemplateInactive, t.ID)
		}
		team, err := tx.GetTeam(ctx, in.TeamID)
		if err != nil {
			return err
		}
		if team.ClubID != venue.ClubID {
			return invalid("team_id", CodeTeamClubMismatch, team.ID)
		}

		day := t.DayOfWeek
		if in.DayOfWeek != nil {
			day = *in.DayOfWeek
		}
		w := storage.Window{Start: in.StartTime, End: in.EndTime}
		errs := validateWindow(w)
		if t.UsesCustomTimes {
			errs = append(errs, validateDayOpen(venue, day)...)
			errs = append(errs, validateTimeSlot(w, venue, day)...)
		} else {
			if day != t.DayOfWeek {
				errs = append(errs, ValidationError{Field: "day_of_week", Code: CodeWrongDay, Ref: t.DayOfWeek.String()})
			}
			if !t.Window().Contains(w) {
				errs = append(errs, ValidationError{Field: "start_time", Code: CodeOutsideTemplate, Ref: t.Window().String()})
			}
		}
		if err := errs.Err(); err != nil {
			return err
		}

		existing, err := tx.ListSegments(ctx, t.ID, &day, true)
		if err != nil {
			return err
		}
		var overlapping []Conflict
		windows := []storage.Window{w}
		for _, other := range existing {
			if !Overlaps(other.Window(), w) {
				continue
			}
			if other.TeamID == in.TeamID {
				return conflictErr(Conflict{
					Type:            ConflictAlreadyAssigned,
					OtherTemplateID: t.ID,
					OtherSegmentID:  other.ID,
					TeamID:          other.TeamID,
					Window:          other.Window(),
				})
			}
			windows = append(windows, other.Window())
			overlapping = append(overlapping, Conflict{
				Type:            ConflictCapacity,
				OtherTemplateID: t.ID,
				OtherSegmentID:  other.ID,
				TeamID:          other.TeamID,
				Window:          other.Window(),
			})
		}
		if peakConcurrency(windows, w) > venue.ParallelCapacity() {
			return conflictErr(overlapping...)
		}

		seg = storage.SegmentAssignment{
			ID:              s.opts.newID(),
			TemplateID:      t.ID,
			TeamID:          in.TeamID,
			DayOfWeek:       day,
			StartTime:       w.Start,
			EndTime:         w.End,
			DurationMinutes: w.Duration(),
			Status:          storage.SlotActive,
			CreatedAt:       s.opts.now(),
		}
		if err := tx.InsertSegment(ctx, seg); err != nil {
			return err
		}
		return s.audit(ctx, tx.Queries, "segment", seg.ID, "assign", actor, "")
	})
	if err != nil {
		return storage.SegmentAssignment{}, translate(err)
	}
	s.opts.logger.Info("segment assigned",
		zap.String("template_id", seg.TemplateID),
		zap.String("segment_id", seg.ID),
		zap.String("team_id", seg.TeamID),
		zap.Stringer("window", seg.Window()),
	)
	return seg, nil
}
