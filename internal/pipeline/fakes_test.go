package pipeline

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/ignite/punchlist-monitor/internal/domain"
	"github.com/ignite/punchlist-monitor/internal/sharepoint"
)

type fakeList struct {
	fields     []sharepoint.Field
	rows       []sharepoint.RawRow
	rejectBulk bool
	fieldsErr  error
	itemsErr   error
}

type fakeAPI struct {
	lists map[string]*fakeList
	users map[int]string
}

func (f *fakeAPI) Fields(ctx context.Context, list string) ([]sharepoint.Field, error) {
	l, ok := f.lists[list]
	if !ok {
		return nil, &sharepoint.HTTPError{Status: http.StatusNotFound, Body: "list not found"}
	}
	if l.fieldsErr != nil {
		return nil, l.fieldsErr
	}
	return l.fields, nil
}

func (f *fakeAPI) Items(ctx context.Context, list string, selectFields, expand []string) ([]sharepoint.RawRow, error) {
	l := f.lists[list]
	if l.itemsErr != nil {
		return nil, l.itemsErr
	}
	if l.rejectBulk && len(expand) > 0 {
		return nil, &sharepoint.HTTPError{Status: http.StatusBadRequest, Body: "expansion limit"}
	}
	out := make([]sharepoint.RawRow, len(l.rows))
	for i, r := range l.rows {
		c := make(sharepoint.RawRow, len(r))
		for k, v := range r {
			c[k] = v
		}
		out[i] = c
	}
	return out, nil
}

func (f *fakeAPI) SiteUsers(ctx context.Context, ids []int) (map[int]string, error) {
	out := make(map[int]string)
	for _, id := range ids {
		if n, ok := f.users[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

type sentMail struct {
	mu   sync.Mutex
	msgs []domain.EmailMessage
	err  error
}

func (s *sentMail) Send(ctx context.Context, msg domain.EmailMessage) (*domain.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.SendResult{MessageID: "id"}, nil
}

func (s *sentMail) subjects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.Subject
	}
	return out
}

func (s *sentMail) last() domain.EmailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgs[len(s.msgs)-1]
}

// lockingWriter reports one destination of one file as locked.
type lockingWriter struct {
	lockedDir  string
	lockedFile string
	written    []string
}

func (w *lockingWriter) Write(ctx context.Context, table *domain.Table, destinations []string, filename string) []domain.PathOutcome {
	out := make([]domain.PathOutcome, 0, len(destinations))
	for _, dest := range destinations {
		path := filepath.Join(dest, filename)
		if dest == w.lockedDir && filename == w.lockedFile {
			out = append(out, domain.PathOutcome{Path: path, Locked: true, Error: "file locked: " + path})
			continue
		}
		w.written = append(w.written, path)
		out = append(out, domain.PathOutcome{Path: path, OK: true})
	}
	return out
}

type failingAuth struct{ err error }

func (a failingAuth) Authenticate(ctx context.Context) (domain.Credentials, error) {
	return domain.Credentials{}, a.err
}

func (failingAuth) Close() error { return nil }

var errLogin = errors.New("login not detected")
