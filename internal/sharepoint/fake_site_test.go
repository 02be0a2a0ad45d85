package sharepoint

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ignite/punchlist-monitor/internal/config"
	"github.com/ignite/punchlist-monitor/internal/domain"
)

// fakeSite is an in-memory SharePoint site serving one list.
type fakeSite struct {
	t      *testing.T
	list   string
	fields []Field

	// bulkStatus answers item queries that carry $expand.
	bulkStatus int
	baseStatus int
	fieldsCode int
	bulkRows   []map[string]any
	baseRows   []map[string]any
	users      map[int]string
	usersFail  int

	mu          sync.Mutex
	itemQueries []string
	userFilters []string
	cookies     []string
}

func newFakeSite(t *testing.T, list string) *fakeSite {
	return &fakeSite{
		t:          t,
		list:       list,
		bulkStatus: http.StatusOK,
		baseStatus: http.StatusOK,
		fieldsCode: http.StatusOK,
		users:      map[int]string{},
	}
}

func (f *fakeSite) writeResults(w http.ResponseWriter, results any) {
	w.Header().Set("Content-Type", "application/json;odata=verbose")
	require.NoError(f.t, json.NewEncoder(w).Encode(map[string]any{"d": map[string]any{"results": results}}))
}

func (f *fakeSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	if c, err := r.Cookie("FedAuth"); err == nil {
		f.cookies = append(f.cookies, c.Value)
	}
	f.mu.Unlock()

	prefix := "/sites/Review/_api/web/lists/getbytitle('" + f.list + "')"
	switch {
	case r.URL.Path == prefix+"/fields":
		if f.fieldsCode != http.StatusOK {
			w.WriteHeader(f.fieldsCode)
			return
		}
		f.writeResults(w, f.fields)
	case r.URL.Path == prefix+"/items":
		q := r.URL.Query()
		f.mu.Lock()
		f.itemQueries = append(f.itemQueries, r.URL.RawQuery)
		f.mu.Unlock()
		if q.Get("$expand") != "" {
			if f.bulkStatus != http.StatusOK {
				http.Error(w, `{"error":{"message":"too many lookups"}}`, f.bulkStatus)
				return
			}
			f.writeResults(w, f.bulkRows)
			return
		}
		if f.baseStatus != http.StatusOK {
			http.Error(w, "boom", f.baseStatus)
			return
		}
		f.writeResults(w, f.baseRows)
	case r.URL.Path == "/sites/Review/_api/web/siteusers":
		filter := r.URL.Query().Get("$filter")
		f.mu.Lock()
		f.userFilters = append(f.userFilters, filter)
		fail := f.usersFail > 0 && len(f.userFilters) == f.usersFail
		f.mu.Unlock()
		if fail {
			http.Error(w, "nope", http.StatusForbidden)
			return
		}
		var out []map[string]any
		for _, clause := range strings.Split(filter, " or ") {
			var id int
			if _, err := fmt.Sscanf(clause, "Id eq %d", &id); err != nil {
				continue
			}
			if name, ok := f.users[id]; ok {
				out = append(out, map[string]any{"Id": id, "Title": name})
			}
		}
		f.writeResults(w, out)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeSite) start() (*httptest.Server, *Client) {
	server := httptest.NewServer(f)
	f.t.Cleanup(server.Close)

	cfg := config.SharePointConfig{
		SiteURL:        server.URL + "/sites/Review",
		PageSize:       5000,
		TimeoutSeconds: 5,
		MaxRetries:     1,
	}
	creds := domain.Credentials{
		Cookies:    []domain.Cookie{{Name: "FedAuth", Value: "session-token", Domain: ".sharepoint.com", Path: "/"}},
		CapturedAt: time.Now(),
	}
	client, err := NewClient(cfg, creds)
	require.NoError(f.t, err)
	return server, client
}
