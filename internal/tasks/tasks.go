// Package tasks manages the to-do list: an ordered collection of tasks kept in
// memory and written back to its storage slot after every mutation.
package tasks

import (
	"errors"
	"strings"
	"sync"
	"time"

	"simpletasks/internal/store"
	"simpletasks/internal/utils"
)

// DefaultKey is the storage slot holding the task collection.
const DefaultKey = "tasks"

// ErrEmptyText is returned (wrapped) when a task's text is blank.
var ErrEmptyText = errors.New("task text is required")

// Task is a single to-do item. ID is the creation time in milliseconds.
type Task struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Filter selects tasks by completion state.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
)

// Filters lists the valid filter names.
var Filters = []string{string(FilterAll), string(FilterActive), string(FilterCompleted)}

// ParseFilter converts a user-supplied filter name. Empty means all.
func ParseFilter(s string) (Filter, error) {
	switch Filter(strings.ToLower(strings.TrimSpace(s))) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterActive:
		return FilterActive, nil
	case FilterCompleted:
		return FilterCompleted, nil
	default:
		return "", utils.ErrInvalidFilter(s, Filters)
	}
}

// Matches reports whether t passes the filter.
func (f Filter) Matches(t Task) bool {
	switch f {
	case FilterActive:
		return !t.Completed
	case FilterCompleted:
		return t.Completed
	default:
		return true
	}
}

// Manager owns the task collection for one storage slot.
type Manager struct {
	mu    sync.Mutex
	slots store.Slots
	key   string
	tasks []Task
	now   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithKey overrides the storage slot name.
func WithKey(key string) Option {
	return func(m *Manager) { m.key = key }
}

// WithClock overrides the clock used to stamp new task ids.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New loads the task collection from slots. The collection is never re-read
// after this point.
func New(slots store.Slots, opts ...Option) *Manager {
	m := &Manager{
		slots: slots,
		key:   DefaultKey,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.tasks = store.Load[Task](slots, m.key)
	return m
}

// commit persists next and makes it the current collection. On failure the
// current collection is left untouched.
func (m *Manager) commit(next []Task) error {
	if err := store.Save(m.slots, m.key, next); err != nil {
		return err
	}
	m.tasks = next
	return nil
}

func (m *Manager) clone() []Task {
	return append(make([]Task, 0, len(m.tasks)+1), m.tasks...)
}

func (m *Manager) indexOf(id int64) int {
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// nextID returns the current time in milliseconds, bumped past every existing
// id so identities stay unique even when the clock repeats.
func (m *Manager) nextID() int64 {
	id := m.now().UnixMilli()
	for _, t := range m.tasks {
		if t.ID >= id {
			id = t.ID + 1
		}
	}
	return id
}

// Add appends a new, not completed task and persists the collection.
func (m *Manager) Add(text string) (*Task, error) {
	values, err := utils.RequireFields(ErrEmptyText, utils.Field{Name: "text", Value: text})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	task := Task{ID: m.nextID(), Text: values[0]}
	if err := m.commit(append(m.clone(), task)); err != nil {
		return nil, err
	}
	return &task, nil
}

// Update replaces the text of the task with the given id. It returns nil, nil
// when no task has that id.
func (m *Manager) Update(id int64, text string) (*Task, error) {
	values, err := utils.RequireFields(ErrEmptyText, utils.Field{Name: "text", Value: text})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return nil, nil
	}
	next := m.clone()
	next[i].Text = values[0]
	if err := m.commit(next); err != nil {
		return nil, err
	}
	updated := next[i]
	return &updated, nil
}

// Toggle flips the completed flag of the task with the given id. It returns
// nil, nil when no task has that id.
func (m *Manager) Toggle(id int64) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return nil, nil
	}
	next := m.clone()
	next[i].Completed = !next[i].Completed
	if err := m.commit(next); err != nil {
		return nil, err
	}
	toggled := next[i]
	return &toggled, nil
}

// Remove deletes every task with the given id and persists the collection
// whether or not a task was removed.
func (m *Manager) Remove(id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.ID != id {
			next = append(next, t)
		}
	}
	removed := len(next) != len(m.tasks)
	if err := m.commit(next); err != nil {
		return false, err
	}
	return removed, nil
}

// ClearCompleted removes every completed task and returns how many were removed.
func (m *Manager) ClearCompleted() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if !t.Completed {
			next = append(next, t)
		}
	}
	removed := len(m.tasks) - len(next)
	if err := m.commit(next); err != nil {
		return 0, err
	}
	return removed, nil
}

// Query returns the tasks passing filter whose text contains search,
// case-insensitively, in collection order.
func (m *Manager) Query(filter Filter, search string) []Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	needle := strings.ToLower(search)
	result := []Task{}
	for _, t := range m.tasks {
		if !filter.Matches(t) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(t.Text), needle) {
			continue
		}
		result = append(result, t)
	}
	return result
}

// All returns a copy of the full collection.
func (m *Manager) All() []Task {
	return m.Query(FilterAll, "")
}

// Get returns the task with the given id, or nil.
func (m *Manager) Get(id int64) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i := m.indexOf(id); i >= 0 {
		t := m.tasks[i]
		return &t
	}
	return nil
}

// HasCompleted reports whether any task is completed.
func (m *Manager) HasCompleted() bool {
	return len(m.Query(FilterCompleted, "")) > 0
}
