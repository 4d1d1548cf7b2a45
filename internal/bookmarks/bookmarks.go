// Package bookmarks manages the bookmarked-books list, keyed by URL.
package bookmarks

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"simpletasks/internal/store"
	"simpletasks/internal/utils"
)

// DefaultKey is the storage slot holding the bookmark collection.
const DefaultKey = "books"

var (
	// ErrEmptyField is returned (wrapped) when a required field is blank.
	ErrEmptyField = errors.New("all fields are required")
	// ErrDuplicate is returned when a bookmark with the same URL already exists.
	ErrDuplicate = errors.New("bookmark already exists")
)

// Book is a bookmarked book. URL identifies it within the collection.
type Book struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	URL    string `json:"url"`
}

// Manager owns the bookmark collection for one storage slot.
type Manager struct {
	mu    sync.Mutex
	slots store.Slots
	key   string
	books []Book
}

// New loads the bookmark collection stored under key (DefaultKey when empty).
func New(slots store.Slots, key string) *Manager {
	if key == "" {
		key = DefaultKey
	}
	return &Manager{
		slots: slots,
		key:   key,
		books: store.Load[Book](slots, key),
	}
}

func (m *Manager) commit(next []Book) error {
	if err := store.Save(m.slots, m.key, next); err != nil {
		return err
	}
	m.books = next
	return nil
}

// indexOf finds url among the stored bookmarks, ignoring surrounding space.
func (m *Manager) indexOf(url string) int {
	url = strings.TrimSpace(url)
	for i := range m.books {
		if m.books[i].URL == url {
			return i
		}
	}
	return -1
}

// Add validates and appends a bookmark, then persists the collection.
func (m *Manager) Add(title, author, url string) (*Book, error) {
	values, err := utils.RequireFields(ErrEmptyField,
		utils.Field{Name: "title", Value: title},
		utils.Field{Name: "author", Value: author},
		utils.Field{Name: "url", Value: url},
	)
	if err != nil {
		return nil, err
	}
	book := Book{Title: values[0], Author: values[1], URL: values[2]}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexOf(book.URL) >= 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, book.URL)
	}
	next := append(append(make([]Book, 0, len(m.books)+1), m.books...), book)
	if err := m.commit(next); err != nil {
		return nil, err
	}
	return &book, nil
}

// Update replaces title and author of the bookmark with the given URL. Blank
// arguments keep the current value. It returns nil, nil when no bookmark has
// that URL.
func (m *Manager) Update(url, title, author string) (*Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(url)
	if i < 0 {
		return nil, nil
	}
	next := append([]Book(nil), m.books...)
	if v := strings.TrimSpace(title); v != "" {
		next[i].Title = v
	}
	if v := strings.TrimSpace(author); v != "" {
		next[i].Author = v
	}
	if err := m.commit(next); err != nil {
		return nil, err
	}
	updated := next[i]
	return &updated, nil
}

// Remove deletes every bookmark with the given URL. The collection is
// persisted even when nothing matched.
func (m *Manager) Remove(url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	url = strings.TrimSpace(url)
	next := make([]Book, 0, len(m.books))
	for _, b := range m.books {
		if b.URL != url {
			next = append(next, b)
		}
	}
	removed := len(next) != len(m.books)
	if err := m.commit(next); err != nil {
		return false, err
	}
	return removed, nil
}

// Query returns the bookmarks whose title contains search, case-insensitively.
func (m *Manager) Query(search string) []Book {
	m.mu.Lock()
	defer m.mu.Unlock()

	needle := strings.ToLower(search)
	result := []Book{}
	for _, b := range m.books {
		if needle == "" || strings.Contains(strings.ToLower(b.Title), needle) {
			result = append(result, b)
		}
	}
	return result
}

// All returns a copy of the full collection.
func (m *Manager) All() []Book {
	return m.Query("")
}
