package storage

import (
	"context"
	"time"
)

type EventRecord struct {
	ID          int64
	Title       string
	Type        string
	Date        time.Time
	Time        string
	EndTime     *string
	EndDate     *time.Time
	Location    string
	VKSLink     string
	Description string
	Status      string
	RegionName  string
	IsMultiDay  bool
	CreatedBy   *int64
	Responsible []ResponsibleRecord
	Reminders   []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ResponsibleRecord is a user assigned to an event, joined with the profile
// fields shown next to the event.
type ResponsibleRecord struct {
	UserID   int64
	FullName string
	Position string
}

// EventInput holds the columns written on create and update. Time and EndTime
// use the HH:MM form.
type EventInput struct {
	Title       string
	Type        string
	Date        time.Time
	Time        string
	EndTime     *string
	EndDate     *time.Time
	Location    string
	VKSLink     string
	Description string
	Status      string
	RegionName  string
	IsMultiDay  bool
}

type EventFilter struct {
	DateFrom *time.Time
	DateTo   *time.Time
	Type     string
	Status   string
}

type EventRepository interface {
	// List orders by date and time, latest first.
	List(ctx context.Context, filter EventFilter) ([]EventRecord, error)
	Get(ctx context.Context, id int64) (EventRecord, error)
	Create(ctx context.Context, createdBy int64, input EventInput) (int64, error)
	Update(ctx context.Context, id int64, input EventInput) error
	Delete(ctx context.Context, id int64) error

	ResponsibleIDs(ctx context.Context, eventID int64) ([]int64, error)
	ReplaceResponsible(ctx context.Context, eventID int64, userIDs []int64) error
	ReplaceReminders(ctx context.Context, eventID int64, reminders []string) error
}
