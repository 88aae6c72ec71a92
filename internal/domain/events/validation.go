package events

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Togather-Foundation/agenda/internal/auth"
	"github.com/Togather-Foundation/agenda/internal/sanitize"
	"github.com/Togather-Foundation/agenda/internal/storage"
	"github.com/go-playground/validator/v10"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"

	maxTitleLength       = 500
	maxDescriptionLength = 10000
	maxReminders         = 20
)

var validate = validator.New()

// normalize checks an Input and converts it to the storage form.
func normalize(input Input) (storage.EventInput, error) {
	out := storage.EventInput{
		Title:       sanitize.Text(input.Title),
		Type:        strings.TrimSpace(input.Type),
		Location:    sanitize.Text(input.Location),
		VKSLink:     strings.TrimSpace(input.VKSLink),
		Description: sanitize.Text(input.Description),
		Status:      strings.TrimSpace(input.Status),
		RegionName:  sanitize.Text(input.RegionName),
		IsMultiDay:  input.IsMultiDay,
	}

	if out.Title == "" {
		return out, auth.ValidationError{Field: "title", Message: "is required"}
	}
	if utf8.RuneCountInString(out.Title) > maxTitleLength {
		return out, auth.ValidationError{Field: "title", Message: "is too long"}
	}
	if utf8.RuneCountInString(out.Description) > maxDescriptionLength {
		return out, auth.ValidationError{Field: "description", Message: "is too long"}
	}
	if !slices.Contains(Types, out.Type) {
		return out, auth.ValidationError{Field: "type", Message: "must be one of: " + strings.Join(Types, ", ")}
	}
	if out.Status == "" {
		out.Status = StatusScheduled
	}
	if !slices.Contains(Statuses, out.Status) {
		return out, auth.ValidationError{Field: "status", Message: "must be one of: " + strings.Join(Statuses, ", ")}
	}

	date, err := parseDate(input.Date)
	if err != nil || date == nil {
		return out, auth.ValidationError{Field: "date", Message: "must be a date in YYYY-MM-DD form"}
	}
	out.Date = *date

	endDate, err := parseDate(input.EndDate)
	if err != nil {
		return out, auth.ValidationError{Field: "endDate", Message: "must be a date in YYYY-MM-DD form"}
	}
	if endDate != nil && endDate.Before(out.Date) {
		return out, auth.ValidationError{Field: "endDate", Message: "must not be before date"}
	}
	out.EndDate = endDate

	start, err := parseClock(input.Time)
	if err != nil {
		return out, auth.ValidationError{Field: "time", Message: "must be a time in HH:MM form"}
	}
	if start == nil {
		midnight := "00:00"
		start = &midnight
	}
	out.Time = *start

	end, err := parseClock(input.EndTime)
	if err != nil {
		return out, auth.ValidationError{Field: "endTime", Message: "must be a time in HH:MM form"}
	}
	if end != nil && endDate == nil && *end < out.Time {
		return out, auth.ValidationError{Field: "endTime", Message: "must not be before time"}
	}
	out.EndTime = end

	if out.VKSLink != "" {
		if err := validate.Var(out.VKSLink, "http_url"); err != nil {
			return out, auth.ValidationError{Field: "vksLink", Message: "must be an http or https URL"}
		}
	}
	return out, nil
}

func normalizeReminders(reminders []string) ([]string, error) {
	if reminders == nil {
		return nil, nil
	}
	clean := sanitize.TextSlice(reminders)
	if len(clean) > maxReminders {
		return nil, auth.ValidationError{Field: "reminders", Message: "too many reminders"}
	}
	return clean, nil
}

func normalizeResponsible(ids []int64) ([]int64, error) {
	if ids == nil {
		return nil, nil
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, auth.ValidationError{Field: "responsible", Message: "contains an invalid user id"}
		}
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

func parseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if len(value) > len(dateLayout) {
		value = value[:len(dateLayout)]
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parseClock accepts HH:MM and HH:MM:SS and returns HH:MM.
func parseClock(value string) (*string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	layout := timeLayout
	if strings.Count(value, ":") == 2 {
		layout = "15:04:05"
	}
	parsed, err := time.Parse(layout, value)
	if err != nil {
		return nil, err
	}
	clock := parsed.Format(timeLayout)
	return &clock, nil
}
