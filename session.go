package dbconsole

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"dabbertorres.dev/dbconsole/query"
)

// ErrAlreadyLoading is returned by Session.Run while a previous Run is in flight.
var ErrAlreadyLoading = errors.New("a query is already running")

// Runner executes a query script. *Console is a Runner.
type Runner interface {
	Query(ctx context.Context, script string) (*QueryResult, error)
}

// Session is a single query being edited. It tracks when the text last
// changed so hosts can autosave it.
type Session struct {
	ID uuid.UUID

	db       Runner
	pageSize int
	clock    func() time.Time

	mu          sync.Mutex
	text        string
	loading     bool
	dirty       bool
	lastTouched time.Time
}

// NewSession returns an empty session. pageSize is the limit NextPage and
// PrevPage fall back to when the text has none.
func NewSession(db Runner, pageSize int) *Session {
	return &Session{
		ID:       uuid.New(),
		db:       db,
		pageSize: pageSize,
		clock:    time.Now,
	}
}

func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

func (s *Session) SetText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setText(text)
}

func (s *Session) setText(text string) {
	if text == s.text {
		return
	}
	s.text = text
	s.dirty = true
	s.lastTouched = s.clock()
}

func (s *Session) LastTouched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTouched
}

func (s *Session) Params() query.Params {
	return query.BuildQueryParams(s.Text())
}

func (s *Session) rewrite(fn func(string) string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setText(fn(s.text))
	return s.text
}

// Sort replaces the ORDER BY clause, removing it if sorts is empty.
func (s *Session) Sort(sorts []query.Sort) string {
	return s.rewrite(func(text string) string {
		return query.RewriteOrderBy(text, sorts)
	})
}

// Page replaces the LIMIT/OFFSET clauses, removing them if p is zero.
func (s *Session) Page(p query.Pagination) string {
	return s.rewrite(func(text string) string {
		return query.RewritePagination(text, p)
	})
}

// Project replaces the selected columns.
func (s *Session) Project(columns []string) string {
	return s.rewrite(func(text string) string {
		return query.RewriteProjection(text, columns)
	})
}

func (s *Session) NextPage() string {
	return s.rewrite(func(text string) string {
		p := query.ExtractPagination(text)
		if p.Limit == 0 {
			p.Limit = s.pageSize
		}
		p.Offset += p.Limit
		return query.RewritePagination(text, p)
	})
}

// PrevPage steps back one page, stopping at the first.
func (s *Session) PrevPage() string {
	return s.rewrite(func(text string) string {
		p := query.ExtractPagination(text)
		if p.Limit == 0 {
			p.Limit = s.pageSize
		}
		p.Offset -= p.Limit
		if p.Offset < 0 {
			p.Offset = 0
		}
		return query.RewritePagination(text, p)
	})
}

// Run executes the current text. Only one Run may be in flight at a time.
func (s *Session) Run(ctx context.Context) (*QueryResult, error) {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil, ErrAlreadyLoading
	}
	s.loading = true
	text := s.text
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	return s.db.Query(ctx, text)
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// ShouldFlush reports whether an edit made at lastTouched has been left alone
// for at least interval. A zero lastTouched never flushes.
func ShouldFlush(now, lastTouched time.Time, interval time.Duration) bool {
	if lastTouched.IsZero() {
		return false
	}
	return !now.Before(lastTouched.Add(interval))
}

// Flush writes the text to w if it changed since the last flush and has
// been idle for interval. It reports whether anything was written.
func (s *Session) Flush(w io.Writer, now time.Time, interval time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty || !ShouldFlush(now, s.lastTouched, interval) {
		return false, nil
	}

	if _, err := fmt.Fprintln(w, s.text); err != nil {
		return false, fmt.Errorf("could not flush session %s: %w", s.ID, err)
	}
	s.dirty = false
	return true, nil
}
