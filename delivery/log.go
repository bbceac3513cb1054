package delivery

import (
	"sync"

	"github.com/xraph/paysim/internal/ring"
)

// Log is the in-memory sequence of delivery attempt entries. With a positive
// capacity the oldest entries are evicted; zero keeps everything.
type Log struct {
	mu      sync.RWMutex
	entries *ring.Ring[*Entry]
	byID    map[string]*Entry
}

// NewLog returns an empty log bounded to capacity entries (0 = unbounded).
func NewLog(capacity int) *Log {
	return &Log{
		entries: ring.New[*Entry](capacity),
		byID:    make(map[string]*Entry),
	}
}

// Append stores e and returns its ID.
func (l *Log) Append(e Entry) string {
	key := e.ID.String()

	l.mu.Lock()
	defer l.mu.Unlock()
	if old, evicted := l.entries.Push(&e); evicted {
		delete(l.byID, old.ID.String())
	}
	l.byID[key] = &e
	return key
}

// Update applies fn to the entry with id. It reports false when the entry is
// unknown or was evicted.
func (l *Log) Update(entryID string, fn func(*Entry)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.byID[entryID]
	if !ok {
		return false
	}
	fn(e)
	return true
}

// Get returns a copy of the entry with id.
func (l *Log) Get(entryID string) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.byID[entryID]
	if !ok {
		return Entry{}, ErrLogNotFound
	}
	return e.clone(), nil
}

// Len returns the number of entries held.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries.Len()
}

// Clear drops every entry.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries.Reset()
	l.byID = make(map[string]*Entry)
}

// ListOpts configures List.
type ListOpts struct {
	// Limit caps the page size; zero or less returns every match.
	Limit  int
	Offset int

	// Account is the requesting account. Entries owned by another account
	// are hidden; global entries are always visible.
	Account string

	// AllAccounts disables account filtering.
	AllAccounts bool
}

// Page is one page of log entries, newest first.
type Page struct {
	Object     string  `json:"object"`
	Data       []Entry `json:"data"`
	HasMore    bool    `json:"has_more"`
	TotalCount int     `json:"total_count"`
}

// List returns the visible entries newest first, paginated by opts.
func (l *Log) List(opts ListOpts) Page {
	l.mu.RLock()
	visible := make([]Entry, 0, l.entries.Len())
	for i := l.entries.Len() - 1; i >= 0; i-- {
		e := l.entries.At(i)
		if opts.AllAccounts || e.AccountID == "" || e.AccountID == opts.Account {
			visible = append(visible, e.clone())
		}
	}
	l.mu.RUnlock()

	total := len(visible)
	start := min(max(opts.Offset, 0), total)
	end := total
	if opts.Limit > 0 {
		end = min(start+opts.Limit, total)
	}

	return Page{
		Object:     "list",
		Data:       visible[start:end],
		HasMore:    end < total,
		TotalCount: total,
	}
}
