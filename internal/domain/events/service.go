package events

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/Togather-Foundation/agenda/internal/audit"
	"github.com/Togather-Foundation/agenda/internal/auth"
	"github.com/Togather-Foundation/agenda/internal/storage"
	"github.com/rs/zerolog"
)

// Service runs event reads and writes behind the authorization gate. Every
// multi-row write happens in one transaction.
type Service struct {
	repo   storage.Repository
	audit  *audit.Logger
	logger zerolog.Logger
}

func NewService(repo storage.Repository, auditLogger *audit.Logger, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		audit:  auditLogger,
		logger: logger.With().Str("component", "events").Logger(),
	}
}

func (s *Service) List(ctx context.Context, caller auth.Principal, filter Filter) ([]Event, error) {
	if err := auth.Require(caller.Role, auth.OpReadEvents); err != nil {
		return nil, err
	}

	from, err := parseDate(filter.From)
	if err != nil {
		return nil, auth.ValidationError{Field: "from", Message: "must be a date in YYYY-MM-DD form"}
	}
	to, err := parseDate(filter.To)
	if err != nil {
		return nil, auth.ValidationError{Field: "to", Message: "must be a date in YYYY-MM-DD form"}
	}

	records, err := s.repo.Events().List(ctx, storage.EventFilter{
		DateFrom: from,
		DateTo:   to,
		Type:     filter.Type,
		Status:   filter.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	items := make([]Event, 0, len(records))
	for _, record := range records {
		items = append(items, fromRecord(record))
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, caller auth.Principal, id int64) (Event, error) {
	if err := auth.Require(caller.Role, auth.OpReadEvents); err != nil {
		return Event{}, err
	}
	record, err := s.repo.Events().Get(ctx, id)
	if err != nil {
		return Event{}, fmt.Errorf("get event: %w", err)
	}
	return fromRecord(record), nil
}

// Create stores the event with its assignees and reminders. The caller is
// recorded as the creator.
func (s *Service) Create(ctx context.Context, caller auth.Principal, input Input) (int64, error) {
	if err := auth.Require(caller.Role, auth.OpCreateEvent); err != nil {
		return 0, err
	}
	record, responsible, reminders, err := normalizeAll(input)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		var err error
		id, err = tx.Events().Create(ctx, caller.UserID, record)
		if err != nil {
			return err
		}
		if len(responsible) > 0 {
			if err := tx.Events().ReplaceResponsible(ctx, id, responsible); err != nil {
				return err
			}
		}
		if len(reminders) > 0 {
			if err := tx.Events().ReplaceReminders(ctx, id, reminders); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, writeError("create event", err)
	}

	s.logger.Info().Int64("event_id", id).Int64("user_id", caller.UserID).Msg("event created")
	return id, nil
}

// Update replaces the event fields. Rewriting the assignee list needs
// OpAssignResponsible; other callers may resend the current list unchanged.
func (s *Service) Update(ctx context.Context, caller auth.Principal, id int64, input Input) error {
	if err := auth.Require(caller.Role, auth.OpUpdateEvent); err != nil {
		return err
	}
	if id <= 0 {
		return auth.ValidationError{Field: "id", Message: "is required"}
	}
	record, responsible, reminders, err := normalizeAll(input)
	if err != nil {
		return err
	}

	canAssign := auth.Authorize(caller.Role, auth.OpAssignResponsible) == auth.Allow

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		if responsible != nil && !canAssign {
			if _, err := tx.Events().Get(ctx, id); err != nil {
				return err
			}
			current, err := tx.Events().ResponsibleIDs(ctx, id)
			if err != nil {
				return err
			}
			if !slices.Equal(current, responsible) {
				return auth.Require(caller.Role, auth.OpAssignResponsible)
			}
		}

		if err := tx.Events().Update(ctx, id, record); err != nil {
			return err
		}
		if responsible != nil && canAssign {
			if err := tx.Events().ReplaceResponsible(ctx, id, responsible); err != nil {
				return err
			}
		}

		if reminders != nil {
			if err := tx.Events().ReplaceReminders(ctx, id, reminders); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return writeError("update event", err)
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, caller auth.Principal, id int64) error {
	if err := auth.Require(caller.Role, auth.OpDeleteEvent); err != nil {
		return err
	}
	if id <= 0 {
		return auth.ValidationError{Field: "id", Message: "is required"}
	}
	if err := s.repo.Events().Delete(ctx, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	s.audit.LogSuccess(ctx, "event.deleted", caller.Actor(), "event", strconv.FormatInt(id, 10), nil)
	return nil
}

func normalizeAll(input Input) (storage.EventInput, []int64, []string, error) {
	record, err := normalize(input)
	if err != nil {
		return storage.EventInput{}, nil, nil, err
	}
	responsible, err := normalizeResponsible(input.Responsible)
	if err != nil {
		return storage.EventInput{}, nil, nil, err
	}
	reminders, err := normalizeReminders(input.Reminders)
	if err != nil {
		return storage.EventInput{}, nil, nil, err
	}
	return record, responsible, reminders, nil
}

// writeError reports an unknown assignee as a validation problem. Other
// errors pass through wrapped.
func writeError(op string, err error) error {
	if errors.Is(err, storage.ErrInvalidReference) {
		return auth.ValidationError{Field: "responsible", Message: "references an unknown user"}
	}
	if errors.Is(err, auth.ErrForbidden) || errors.Is(err, auth.ErrValidation) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func fromRecord(record storage.EventRecord) Event {
	event := Event{
		ID:          record.ID,
		Title:       record.Title,
		Type:        record.Type,
		Date:        record.Date,
		Time:        record.Time,
		EndTime:     record.EndTime,
		EndDate:     record.EndDate,
		Location:    record.Location,
		VKSLink:     record.VKSLink,
		Description: record.Description,
		Status:      record.Status,
		RegionName:  record.RegionName,
		IsMultiDay:  record.IsMultiDay,
		CreatedBy:   record.CreatedBy,
		Reminders:   record.Reminders,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
	if event.Reminders == nil {
		event.Reminders = []string{}
	}
	event.Responsible = make([]Responsible, 0, len(record.Responsible))
	for _, r := range record.Responsible {
		event.Responsible = append(event.Responsible, Responsible{UserID: r.UserID, FullName: r.FullName, Position: r.Position})
	}
	return event
}
