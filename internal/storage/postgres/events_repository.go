package postgres

import (
	"context"

	"github.com/Togather-Foundation/agenda/internal/storage"
	"github.com/jackc/pgx/v5"
)

type EventRepository struct {
	q queryer
}

const eventColumns = `e.id, e.title, e.type, e.date, to_char(e.time, 'HH24:MI'), to_char(e.end_time, 'HH24:MI'),
       e.end_date, e.location, e.vks_link, e.description, e.status, e.region_name,
       e.is_multi_day, e.created_by, e.created_at, e.updated_at`

func (r *EventRepository) List(ctx context.Context, filter storage.EventFilter) ([]storage.EventRecord, error) {
	rows, err := r.q.Query(ctx, `
SELECT `+eventColumns+`
  FROM events e
 WHERE ($1::date IS NULL OR e.date >= $1::date)
   AND ($2::date IS NULL OR e.date <= $2::date)
   AND ($3::text = '' OR e.type = $3)
   AND ($4::text = '' OR e.status = $4)
 ORDER BY e.date DESC, e.time DESC, e.id DESC
`, filter.DateFrom, filter.DateTo, filter.Type, filter.Status)
	if err != nil {
		return nil, translateError("list events", err)
	}
	defer rows.Close()

	items := make([]storage.EventRecord, 0)
	index := make(map[int64]int)
	ids := make([]int64, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, translateError("scan event", err)
		}
		index[event.ID] = len(items)
		ids = append(ids, event.ID)
		items = append(items, event)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("iterate events", err)
	}
	if len(ids) == 0 {
		return items, nil
	}

	responsible, err := r.responsibleFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for eventID, people := range responsible {
		items[index[eventID]].Responsible = people
	}

	reminders, err := r.remindersFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for eventID, texts := range reminders {
		items[index[eventID]].Reminders = texts
	}
	return items, nil
}

func (r *EventRepository) Get(ctx context.Context, id int64) (storage.EventRecord, error) {
	event, err := scanEvent(r.q.QueryRow(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = $1`, id))
	if err != nil {
		return storage.EventRecord{}, translateError("get event", err)
	}

	responsible, err := r.responsibleFor(ctx, []int64{id})
	if err != nil {
		return storage.EventRecord{}, err
	}
	event.Responsible = responsible[id]

	reminders, err := r.remindersFor(ctx, []int64{id})
	if err != nil {
		return storage.EventRecord{}, err
	}
	event.Reminders = reminders[id]
	return event, nil
}

func (r *EventRepository) Create(ctx context.Context, createdBy int64, input storage.EventInput) (int64, error) {
	var creator *int64
	if createdBy > 0 {
		creator = &createdBy
	}

	var id int64
	err := r.q.QueryRow(ctx, `
INSERT INTO events (title, type, date, time, end_time, end_date, location, vks_link,
                    description, status, region_name, is_multi_day, created_by)
VALUES ($1, $2, $3, $4::text::time, $5::text::time, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING id
`,
		input.Title,
		input.Type,
		input.Date,
		input.Time,
		input.EndTime,
		input.EndDate,
		input.Location,
		input.VKSLink,
		input.Description,
		input.Status,
		input.RegionName,
		input.IsMultiDay,
		creator,
	).Scan(&id)
	if err != nil {
		return 0, translateError("create event", err)
	}
	return id, nil
}

func (r *EventRepository) Update(ctx context.Context, id int64, input storage.EventInput) error {
	tag, err := r.q.Exec(ctx, `
UPDATE events
   SET title = $1, type = $2, date = $3, time = $4::text::time, end_time = $5::text::time,
       end_date = $6, location = $7, vks_link = $8, description = $9, status = $10,
       region_name = $11, is_multi_day = $12, updated_at = now()
 WHERE id = $13
`,
		input.Title,
		input.Type,
		input.Date,
		input.Time,
		input.EndTime,
		input.EndDate,
		input.Location,
		input.VKSLink,
		input.Description,
		input.Status,
		input.RegionName,
		input.IsMultiDay,
		id,
	)
	if err != nil {
		return translateError("update event", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes the event; responsible and reminder rows go with it through
// ON DELETE CASCADE.
func (r *EventRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return translateError("delete event", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *EventRepository) ResponsibleIDs(ctx context.Context, eventID int64) ([]int64, error) {
	rows, err := r.q.Query(ctx, `SELECT user_id FROM event_responsible WHERE event_id = $1 ORDER BY user_id`, eventID)
	if err != nil {
		return nil, translateError("list responsible ids", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, translateError("scan responsible ids", err)
	}
	return ids, nil
}

// ReplaceResponsible rewrites the assignee set. Callers run it inside WithTx
// together with the event update.
func (r *EventRepository) ReplaceResponsible(ctx context.Context, eventID int64, userIDs []int64) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM event_responsible WHERE event_id = $1`, eventID); err != nil {
		return translateError("clear responsible", err)
	}
	if len(userIDs) == 0 {
		return nil
	}
	_, err := r.q.Exec(ctx, `
INSERT INTO event_responsible (event_id, user_id)
SELECT $1, unnest($2::bigint[])
ON CONFLICT DO NOTHING
`, eventID, userIDs)
	if err != nil {
		return translateError("insert responsible", err)
	}
	return nil
}

func (r *EventRepository) ReplaceReminders(ctx context.Context, eventID int64, reminders []string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM event_reminders WHERE event_id = $1`, eventID); err != nil {
		return translateError("clear reminders", err)
	}
	if len(reminders) == 0 {
		return nil
	}
	_, err := r.q.Exec(ctx, `
INSERT INTO event_reminders (event_id, reminder_text)
SELECT $1, unnest($2::text[])
`, eventID, reminders)
	if err != nil {
		return translateError("insert reminders", err)
	}
	return nil
}

func (r *EventRepository) responsibleFor(ctx context.Context, eventIDs []int64) (map[int64][]storage.ResponsibleRecord, error) {
	rows, err := r.q.Query(ctx, `
SELECT er.event_id, u.id, u.full_name, u.position
  FROM event_responsible er
  JOIN users u ON u.id = er.user_id
 WHERE er.event_id = ANY($1::bigint[])
 ORDER BY er.event_id, u.full_name, u.id
`, eventIDs)
	if err != nil {
		return nil, translateError("list responsible", err)
	}
	defer rows.Close()

	result := make(map[int64][]storage.ResponsibleRecord)
	for rows.Next() {
		var eventID int64
		var person storage.ResponsibleRecord
		if err := rows.Scan(&eventID, &person.UserID, &person.FullName, &person.Position); err != nil {
			return nil, translateError("scan responsible", err)
		}
		result[eventID] = append(result[eventID], person)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("iterate responsible", err)
	}
	return result, nil
}

func (r *EventRepository) remindersFor(ctx context.Context, eventIDs []int64) (map[int64][]string, error) {
	rows, err := r.q.Query(ctx, `
SELECT event_id, reminder_text
  FROM event_reminders
 WHERE event_id = ANY($1::bigint[])
 ORDER BY event_id, id
`, eventIDs)
	if err != nil {
		return nil, translateError("list reminders", err)
	}
	defer rows.Close()

	result := make(map[int64][]string)
	for rows.Next() {
		var eventID int64
		var text string
		if err := rows.Scan(&eventID, &text); err != nil {
			return nil, translateError("scan reminder", err)
		}
		result[eventID] = append(result[eventID], text)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("iterate reminders", err)
	}
	return result, nil
}

func scanEvent(row pgx.Row) (storage.EventRecord, error) {
	var event storage.EventRecord
	err := row.Scan(
		&event.ID,
		&event.Title,
		&event.Type,
		&event.Date,
		&event.Time,
		&event.EndTime,
		&event.EndDate,
		&event.Location,
		&event.VKSLink,
		&event.Description,
		&event.Status,
		&event.RegionName,
		&event.IsMultiDay,
		&event.CreatedBy,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	return event, err
}
