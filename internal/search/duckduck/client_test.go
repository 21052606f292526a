package duckduck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kitbuilder587/boing-search/internal/ratelimit"
	"github.com/kitbuilder587/boing-search/internal/rotation"
	"github.com/kitbuilder587/boing-search/internal/search"
)

const liteURL = "http://lite.test/lite/"

// newProxy starts a test server that plays the egress proxy. Requests to
// liteURL reach it in absolute form.
func newProxy(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, proxy *httptest.Server, deps Deps) *Client {
	t.Helper()
	if deps.Proxies == nil {
		u, _ := url.Parse(proxy.URL)
		deps.Proxies = rotation.New([]*url.URL{u})
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return New(Config{
		BaseURL: liteURL,
		NextURL: liteURL,
		Timeout: 2 * time.Second,
	}, deps)
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	w.Write([]byte(body))
}

func TestClient_InitialSearch(t *testing.T) {
	var calls atomic.Int32
	proxy := newProxy(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.Host != "lite.test" {
			t.Errorf("request did not go through proxy: host = %q", r.Host)
		}
		if got := r.URL.Query().Get("q"); got != "Amiga 40" {
			t.Errorf("q = %q, want Amiga 40", got)
		}
		if got := r.URL.Query().Get("kl"); got != "wt-wt" {
			t.Errorf("kl = %q, want wt-wt", got)
		}
		if got := r.Header.Get("Accept"); got != "text/html" {
			t.Errorf("Accept = %q", got)
		}
		if got := r.Header.Get("Accept-Language"); got != "en-US,en;q=0.9" {
			t.Errorf("Accept-Language = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "RetroBrowser/1.0" {
			t.Errorf("User-Agent = %q", got)
		}
		if r.Header.Get("Cookie") != "" {
			t.Error("scraper must not send cookies")
		}
		http.SetCookie(w, &http.Cookie{Name: "tracking", Value: "1"})
		writeHTML(w, fixturePage(amiga, nextForm))
	})

	gate := ratelimit.NewGate(0)
	client := newTestClient(t, proxy, Deps{
		Gate:       gate,
		UserAgents: rotation.New([]string{"RetroBrowser/1.0"}),
	})

	resp, err := client.InitialSearch(context.Background(), "Amiga 40")
	if err != nil {
		t.Fatalf("InitialSearch() error = %v", err)
	}
	if len(resp.Records) != 3 {
		t.Errorf("got %d records, want 3", len(resp.Records))
	}
	if resp.Records[0].Link != "https://en.wikipedia.org/wiki/Amiga" {
		t.Errorf("first link = %q", resp.Records[0].Link)
	}
	if q, _ := resp.Continuation.Get("q"); q != "Amiga 40" {
		t.Errorf("continuation q = %q", q)
	}
	if gate.LastDispatch().IsZero() {
		t.Error("request was not dispatched through the gate")
	}

	// второй запрос не должен нести cookie из первого ответа
	if _, err := client.InitialSearch(context.Background(), "Amiga 40"); err != nil {
		t.Fatalf("second InitialSearch() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("proxy saw %d requests, want 2", calls.Load())
	}
}

func TestClient_NextPage(t *testing.T) {
	proxy := newProxy(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
			return
		}
		if r.PostForm.Get("q") != "Amiga 40" || r.PostForm.Get("s") != "23" || r.PostForm.Get("vqd") != "4-123" {
			t.Errorf("form = %v", r.PostForm)
		}
		writeHTML(w, fixturePage(amiga[1:], ""))
	})

	client := newTestClient(t, proxy, Deps{})

	tok := search.NewToken().With("q", "Amiga 40").With("s", "23").With("vqd", "4-123")
	resp, err := client.NextPage(context.Background(), tok)
	if err != nil {
		t.Fatalf("NextPage() error = %v", err)
	}
	if len(resp.Records) != 2 {
		t.Errorf("got %d records, want 2", len(resp.Records))
	}
	if !resp.Continuation.IsEmpty() {
		t.Error("last page should have an empty continuation")
	}
}

func TestClient_NextPageInvalidToken(t *testing.T) {
	var calls atomic.Int32
	proxy := newProxy(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	client := newTestClient(t, proxy, Deps{})

	tests := []struct {
		name  string
		token search.Token
	}{
		{"empty", search.Token{}},
		{"no q", search.NewToken().With("s", "23")},
		{"blank q", search.NewToken().With("q", "  ")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.NextPage(context.Background(), tt.token)
			if !errors.Is(err, search.ErrInvalidToken) {
				t.Errorf("NextPage() error = %v, want ErrInvalidToken", err)
			}
		})
	}
	if calls.Load() != 0 {
		t.Errorf("invalid tokens caused %d requests", calls.Load())
	}
}

func TestClient_EmptyProxyPool(t *testing.T) {
	client := New(Config{BaseURL: liteURL}, Deps{Proxies: rotation.New[*url.URL](nil)})

	_, err := client.InitialSearch(context.Background(), "x")
	if !errors.Is(err, rotation.ErrEmptyPool) {
		t.Errorf("InitialSearch() error = %v, want ErrEmptyPool", err)
	}
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
		wantErr error
	}{
		{
			name: "upstream 403",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			wantErr: search.ErrUpstreamStatus,
		},
		{
			name: "no results table",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeHTML(w, `<html><body><p>If this error persists, please let us know</p></body></html>`)
			},
			wantErr: search.ErrNoResultsTable,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			timeout: 50 * time.Millisecond,
			wantErr: search.ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proxy := newProxy(t, tt.handler)
			client := newTestClient(t, proxy, Deps{})
			if tt.timeout > 0 {
				client.cfg.Timeout = tt.timeout
			}

			_, err := client.InitialSearch(context.Background(), "x")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("InitialSearch() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_CharsetDecoding(t *testing.T) {
	page := fixturePage([]fixtureResult{
		{"Caf\xe9 Amiga", "https://example.com/", "snippet", "example.com"},
	}, "")

	proxy := newProxy(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1252")
		w.Write([]byte(page))
	})
	client := newTestClient(t, proxy, Deps{})

	resp, err := client.InitialSearch(context.Background(), "cafe")
	if err != nil {
		t.Fatalf("InitialSearch() error = %v", err)
	}
	if len(resp.Records) != 1 || resp.Records[0].Title != "Café Amiga" {
		t.Errorf("records = %+v, want title Café Amiga", resp.Records)
	}
}

func TestClient_LogsSkippedChunks(t *testing.T) {
	broken := `<html><body><table>
<tr><td><a class="result-link" href="https://example.com/">ok</a></td></tr>
<tr><td>s</td></tr><tr><td>example.com</td></tr><tr><td></td></tr>
<tr><td><a class="result-link">no href</a></td></tr>
<tr><td>s</td></tr><tr><td>example.com</td></tr><tr><td></td></tr>
</table></body></html>`

	proxy := newProxy(t, func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, broken)
	})

	core, logs := observer.New(zapcore.WarnLevel)
	client := newTestClient(t, proxy, Deps{Logger: zap.New(core)})

	resp, err := client.InitialSearch(context.Background(), "x")
	if err != nil {
		t.Fatalf("InitialSearch() error = %v", err)
	}
	if len(resp.Records) != 1 {
		t.Errorf("got %d records, want 1", len(resp.Records))
	}
	if n := logs.FilterMessage("skipping malformed result").Len(); n != 1 {
		t.Errorf("logged %d skip warnings, want 1", n)
	}
}

func TestClient_RotatesProxies(t *testing.T) {
	var first, second atomic.Int32
	p1 := newProxy(t, func(w http.ResponseWriter, r *http.Request) {
		first.Add(1)
		writeHTML(w, fixturePage(amiga[:1], ""))
	})
	p2 := newProxy(t, func(w http.ResponseWriter, r *http.Request) {
		second.Add(1)
		writeHTML(w, fixturePage(amiga[:1], ""))
	})

	proxies, err := rotation.ParseProxies([]string{p1.URL, p2.URL})
	if err != nil {
		t.Fatalf("ParseProxies() error = %v", err)
	}
	client := newTestClient(t, nil, Deps{Proxies: rotation.New(proxies)})

	for i := 0; i < 4; i++ {
		if _, err := client.InitialSearch(context.Background(), "x"); err != nil {
			t.Fatalf("InitialSearch() error = %v", err)
		}
	}
	if first.Load() != 2 || second.Load() != 2 {
		t.Errorf("proxy hits = %d/%d, want 2/2", first.Load(), second.Load())
	}
}
