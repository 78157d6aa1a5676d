package cloudflare

// Shared test fixture: an httptest fake of the Cloudflare v4 API. Each test
// registers only the handlers it needs; every request is recorded so tests
// can assert on call counts and routing.

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/slimani-dev/muraqib/internal/config"
)

type apiCall struct {
	Method string
	Path   string
}

type fakeAPI struct {
	mux *http.ServeMux
	srv *httptest.Server

	mu    sync.Mutex
	calls []apiCall
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{mux: http.NewServeMux()}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, apiCall{Method: r.Method, Path: r.URL.Path})
		f.mu.Unlock()
		f.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) handle(pattern string, h http.HandlerFunc) {
	f.mux.HandleFunc(pattern, h)
}

// client builds a Client pointed at the fake server.
func (f *fakeAPI) client(accountID string) *Client {
	cfg := config.CloudflareConfig{BaseURL: f.srv.URL, RequestTimeout: 5 * time.Second}
	return NewClient(cfg, accountID, "test-token")
}

func (f *fakeAPI) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

func (f *fakeAPI) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// writeOK writes a success envelope.
func writeOK(w http.ResponseWriter, result interface{}) {
	writeEnvelope(w, http.StatusOK, result, nil)
}

// writePage writes a success envelope with pagination info.
func writePage(w http.ResponseWriter, result interface{}, page, totalPages int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"errors":  []interface{}{},
		"result":  result,
		"result_info": map[string]int{
			"page":        page,
			"total_pages": totalPages,
		},
	})
}

// writeErr writes a failure envelope with one vendor message.
func writeErr(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"errors":  []map[string]interface{}{{"code": 1000, "message": message}},
		"result":  nil,
	})
}

func writeEnvelope(w http.ResponseWriter, status int, result interface{}, errs []map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if errs == nil {
		errs = []map[string]interface{}{}
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": status < 300,
		"errors":  errs,
		"result":  result,
	})
}

func readBody(t *testing.T, r *http.Request, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
}
