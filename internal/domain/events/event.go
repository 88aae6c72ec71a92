package events

import (
	"time"
)

// Type values accepted for an event.
var Types = []string{"meeting", "vks", "hearing", "committee", "visit", "reception", "regional-trip", "pcr-test"}

// Status values accepted for an event. New events default to StatusScheduled.
var Statuses = []string{"scheduled", "in-progress", "completed", "cancelled", "archived", "pending"}

const StatusScheduled = "scheduled"

type Event struct {
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
	Responsible []Responsible
	Reminders   []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Responsible struct {
	UserID   int64
	FullName string
	Position string
}

// Input is an event as submitted by a client. Dates use YYYY-MM-DD and times
// HH:MM. A nil Responsible or Reminders leaves the stored list untouched on
// update.
type Input struct {
	Title       string
	Type        string
	Date        string
	Time        string
	EndTime     string
	EndDate     string
	Location    string
	VKSLink     string
	Description string
	Status      string
	RegionName  string
	IsMultiDay  bool
	Responsible []int64
	Reminders   []string
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	From   string
	To     string
	Type   string
	Status string
}
