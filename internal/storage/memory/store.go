// Package memory is an in-memory storage.Repository for tests and local
// experiments. It enforces the same unique and foreign key rules as the
// Postgres schema.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Togather-Foundation/agenda/internal/storage"
)

type state struct {
	users       map[int64]storage.UserRecord
	events      map[int64]storage.EventRecord
	responsible map[int64][]int64
	reminders   map[int64][]string
	nextUserID  int64
	nextEventID int64
}

func newState() *state {
	return &state{
		users:       make(map[int64]storage.UserRecord),
		events:      make(map[int64]storage.EventRecord),
		responsible: make(map[int64][]int64),
		reminders:   make(map[int64][]string),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, u := range s.users {
		c.users[id] = u
	}
	for id, e := range s.events {
		c.events[id] = e
	}
	for id, ids := range s.responsible {
		c.responsible[id] = append([]int64(nil), ids...)
	}
	for id, texts := range s.reminders {
		c.reminders[id] = append([]string(nil), texts...)
	}
	c.nextUserID = s.nextUserID
	c.nextEventID = s.nextEventID
	return c
}

// Store is safe for concurrent use. Transactions are serialized and work on a
// copy that replaces the committed state on success.
type Store struct {
	mu   *sync.Mutex
	st   *state
	txMu *sync.Mutex
	inTx bool
	err  error
	now  func() time.Time
}

func New() *Store {
	return &Store{
		mu:   &sync.Mutex{},
		st:   newState(),
		txMu: &sync.Mutex{},
		now:  time.Now,
	}
}

// SetError makes every following call fail with ErrUnavailable wrapping err.
// A nil err clears it.
func (s *Store) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Store) Users() storage.UserRepository {
	return &userRepo{s: s}
}

func (s *Store) Events() storage.EventRepository {
	return &eventRepo{s: s}
}

func (s *Store) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return storage.Unavailable("begin tx", err)
	}
	tx := &Store{
		mu:   &sync.Mutex{},
		st:   s.st.clone(),
		txMu: &sync.Mutex{},
		inTx: true,
		now:  s.now,
	}
	s.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = tx.st
	s.mu.Unlock()
	return nil
}

// exclusive serializes a write made outside a transaction with any running
// transaction, whose commit replaces the whole state.
func (s *Store) exclusive() func() {
	s.txMu.Lock()
	return s.txMu.Unlock
}

// lock acquires the store and reports the injected failure, if any.
func (s *Store) lock(op string) error {
	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return storage.Unavailable(op, err)
	}
	return nil
}

type userRepo struct {
	s *Store
}

func (r *userRepo) FindByLoginOrEmail(_ context.Context, identifier string) (storage.UserRecord, error) {
	if err := r.s.lock("find user by identifier"); err != nil {
		return storage.UserRecord{}, err
	}
	defer r.s.mu.Unlock()

	var byLogin *storage.UserRecord
	for _, u := range r.s.st.users {
		if strings.EqualFold(u.Email, identifier) {
			return u, nil
		}
		if u.Login != nil && *u.Login == identifier {
			match := u
			byLogin = &match
		}
	}
	if byLogin != nil {
		return *byLogin, nil
	}
	return storage.UserRecord{}, storage.ErrNotFound
}

func (r *userRepo) FindByID(_ context.Context, id int64) (storage.UserRecord, error) {
	if err := r.s.lock("find user by id"); err != nil {
		return storage.UserRecord{}, err
	}
	defer r.s.mu.Unlock()

	u, ok := r.s.st.users[id]
	if !ok {
		return storage.UserRecord{}, storage.ErrNotFound
	}
	return u, nil
}

func (r *userRepo) List(_ context.Context) ([]storage.UserRecord, error) {
	if err := r.s.lock("list users"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	users := make([]storage.UserRecord, 0, len(r.s.st.users))
	for _, u := range r.s.st.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		ai, aj := users[i].Role == "admin", users[j].Role == "admin"
		if ai != aj {
			return ai
		}
		if users[i].FullName != users[j].FullName {
			return users[i].FullName < users[j].FullName
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (r *userRepo) Create(_ context.Context, user storage.NewUser) (int64, error) {
	defer r.s.exclusive()()
	if err := r.s.lock("create user"); err != nil {
		return 0, err
	}
	defer r.s.mu.Unlock()

	if err := r.checkUnique(0, user.Email, user.Login); err != nil {
		return 0, err
	}

	r.s.st.nextUserID++
	now := r.s.now().UTC()
	record := storage.UserRecord{
		ID:           r.s.st.nextUserID,
		Login:        copyString(user.Login),
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		FullName:     user.FullName,
		Position:     user.Position,
		Role:         user.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.s.st.users[record.ID] = record
	return record.ID, nil
}

func (r *userRepo) Update(_ context.Context, id int64, update storage.UserUpdate) (storage.UserRecord, error) {
	defer r.s.exclusive()()
	if err := r.s.lock("update user"); err != nil {
		return storage.UserRecord{}, err
	}
	defer r.s.mu.Unlock()

	record, ok := r.s.st.users[id]
	if !ok {
		return storage.UserRecord{}, storage.ErrNotFound
	}
	if update.Empty() {
		return record, nil
	}

	email := record.Email
	if update.Email != nil {
		email = *update.Email
	}
	login := record.Login
	if update.Login != nil {
		login = update.Login
	}
	if err := r.checkUnique(id, email, login); err != nil {
		return storage.UserRecord{}, err
	}

	record.Email = email
	record.Login = copyString(login)
	if update.PasswordHash != nil {
		record.PasswordHash = *update.PasswordHash
	}
	if update.FullName != nil {
		record.FullName = *update.FullName
	}
	if update.Position != nil {
		record.Position = *update.Position
	}
	if update.Role != nil {
		record.Role = *update.Role
	}
	record.UpdatedAt = r.s.now().UTC()
	r.s.st.users[id] = record
	return record, nil
}

func (r *userRepo) Delete(_ context.Context, id int64) error {
	defer r.s.exclusive()()
	if err := r.s.lock("delete user"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.st.users[id]; !ok {
		return storage.ErrNotFound
	}
	delete(r.s.st.users, id)

	for eventID, ids := range r.s.st.responsible {
		r.s.st.responsible[eventID] = removeID(ids, id)
	}
	for eventID, e := range r.s.st.events {
		if e.CreatedBy != nil && *e.CreatedBy == id {
			e.CreatedBy = nil
			r.s.st.events[eventID] = e
		}
	}
	return nil
}

func (r *userRepo) checkUnique(selfID int64, email string, login *string) error {
	for _, u := range r.s.st.users {
		if u.ID == selfID {
			continue
		}
		if u.Email == email {
			return &storage.ConflictError{Constraint: "users_email_key", Field: "email"}
		}
		if login != nil && u.Login != nil && *u.Login == *login {
			return &storage.ConflictError{Constraint: "users_login_key", Field: "login"}
		}
	}
	return nil
}

type eventRepo struct {
	s *Store
}

func (r *eventRepo) List(_ context.Context, filter storage.EventFilter) ([]storage.EventRecord, error) {
	if err := r.s.lock("list events"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	items := make([]storage.EventRecord, 0, len(r.s.st.events))
	for _, e := range r.s.st.events {
		if filter.DateFrom != nil && e.Date.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && e.Date.After(*filter.DateTo) {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		items = append(items, r.withRelations(e))
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.After(items[j].Date)
		}
		if items[i].Time != items[j].Time {
			return items[i].Time > items[j].Time
		}
		return items[i].ID > items[j].ID
	})
	return items, nil
}

func (r *eventRepo) Get(_ context.Context, id int64) (storage.EventRecord, error) {
	if err := r.s.lock("get event"); err != nil {
		return storage.EventRecord{}, err
	}
	defer r.s.mu.Unlock()

	e, ok := r.s.st.events[id]
	if !ok {
		return storage.EventRecord{}, storage.ErrNotFound
	}
	return r.withRelations(e), nil
}

func (r *eventRepo) Create(_ context.Context, createdBy int64, input storage.EventInput) (int64, error) {
	defer r.s.exclusive()()
	if err := r.s.lock("create event"); err != nil {
		return 0, err
	}
	defer r.s.mu.Unlock()

	var creator *int64
	if createdBy > 0 {
		if _, ok := r.s.st.users[createdBy]; !ok {
			return 0, storage.ErrInvalidReference
		}
		creator = &createdBy
	}

	r.s.st.nextEventID++
	now := r.s.now().UTC()
	record := applyInput(storage.EventRecord{ID: r.s.st.nextEventID, CreatedBy: creator, CreatedAt: now}, input)
	record.UpdatedAt = now
	r.s.st.events[record.ID] = record
	return record.ID, nil
}

func (r *eventRepo) Update(_ context.Context, id int64, input storage.EventInput) error {
	defer r.s.exclusive()()
	if err := r.s.lock("update event"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	record, ok := r.s.st.events[id]
	if !ok {
		return storage.ErrNotFound
	}
	record = applyInput(record, input)
	record.UpdatedAt = r.s.now().UTC()
	r.s.st.events[id] = record
	return nil
}

func (r *eventRepo) Delete(_ context.Context, id int64) error {
	defer r.s.exclusive()()
	if err := r.s.lock("delete event"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.st.events[id]; !ok {
		return storage.ErrNotFound
	}
	delete(r.s.st.events, id)
	delete(r.s.st.responsible, id)
	delete(r.s.st.reminders, id)
	return nil
}

func (r *eventRepo) ResponsibleIDs(_ context.Context, eventID int64) ([]int64, error) {
	if err := r.s.lock("list responsible ids"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	ids := append([]int64{}, r.s.st.responsible[eventID]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *eventRepo) ReplaceResponsible(_ context.Context, eventID int64, userIDs []int64) error {
	defer r.s.exclusive()()
	if err := r.s.lock("replace responsible"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.st.events[eventID]; !ok {
		return storage.ErrInvalidReference
	}
	seen := make(map[int64]bool, len(userIDs))
	ids := make([]int64, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := r.s.st.users[id]; !ok {
			return storage.ErrInvalidReference
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	r.s.st.responsible[eventID] = ids
	return nil
}

func (r *eventRepo) ReplaceReminders(_ context.Context, eventID int64, reminders []string) error {
	defer r.s.exclusive()()
	if err := r.s.lock("replace reminders"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.st.events[eventID]; !ok {
		return storage.ErrInvalidReference
	}
	r.s.st.reminders[eventID] = append([]string(nil), reminders...)
	return nil
}

func (r *eventRepo) withRelations(e storage.EventRecord) storage.EventRecord {
	for _, id := range r.s.st.responsible[e.ID] {
		if u, ok := r.s.st.users[id]; ok {
			e.Responsible = append(e.Responsible, storage.ResponsibleRecord{UserID: u.ID, FullName: u.FullName, Position: u.Position})
		}
	}
	sort.Slice(e.Responsible, func(i, j int) bool {
		return e.Responsible[i].FullName < e.Responsible[j].FullName
	})
	if texts := r.s.st.reminders[e.ID]; len(texts) > 0 {
		e.Reminders = append([]string(nil), texts...)
	}
	return e
}

func applyInput(record storage.EventRecord, input storage.EventInput) storage.EventRecord {
	record.Title = input.Title
	record.Type = input.Type
	record.Date = input.Date
	record.Time = input.Time
	record.EndTime = copyString(input.EndTime)
	record.EndDate = input.EndDate
	record.Location = input.Location
	record.VKSLink = input.VKSLink
	record.Description = input.Description
	record.Status = input.Status
	record.RegionName = input.RegionName
	record.IsMultiDay = input.IsMultiDay
	return record
}

func copyString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

func removeID(ids []int64, target int64) []int64 {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

var _ storage.Repository = (*Store)(nil)
