package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/desertthunder/stationsync/internal/downloads"
	"github.com/desertthunder/stationsync/internal/models"
	"github.com/desertthunder/stationsync/internal/shared"
	th "github.com/desertthunder/stationsync/internal/testing"
)

// newServer serves a playlist and a forbidden file. A non-empty userAgent is required on
// playlist requests.
func newServer(t *testing.T, userAgent string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/station.m3u", func(w http.ResponseWriter, r *http.Request) {
		if userAgent != "" && r.Header.Get("User-Agent") != userAgent {
			t.Errorf("unexpected User-Agent %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte("#EXTM3U\nhttp://example.com/live\n"))
	})
	mux.HandleFunc("/forbidden.pls", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusForbidden)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

type completions struct {
	mu  sync.Mutex
	ids []int64
}

func (c *completions) add(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, id)
}

func (c *completions) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

func TestManagerDownloads(t *testing.T) {
	server := newServer(t, "stationsync-test")
	dest := t.TempDir()
	ctx := context.Background()

	m := New(Options{UserAgent: "stationsync-test", RateLimit: 100})
	defer m.Close()
	done := &completions{}
	m.OnComplete(done.add)

	t.Run("success", func(t *testing.T) {
		id, err := m.Submit(ctx, downloads.Request{URI: server.URL + "/station.m3u", Title: "station.m3u", DestinationDir: dest})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		m.Wait()

		st, _ := m.Query(ctx, id)
		if st.State != downloads.StateSucceeded {
			t.Fatalf("State = %v, want succeeded", st.State)
		}
		if st.LocalPath != filepath.Join(dest, "station.m3u") || st.OriginURI != server.URL+"/station.m3u" {
			t.Errorf("unexpected status %+v", st)
		}
		if got := th.MustReadFile(t, st.LocalPath); got != "#EXTM3U\nhttp://example.com/live\n" {
			t.Errorf("content = %q", got)
		}
	})

	t.Run("same title gets a unique file", func(t *testing.T) {
		id, _ := m.Submit(ctx, downloads.Request{URI: server.URL + "/station.m3u", Title: "station.m3u", DestinationDir: dest})
		m.Wait()
		st, _ := m.Query(ctx, id)
		if st.LocalPath != filepath.Join(dest, "station-1.m3u") {
			t.Errorf("LocalPath = %s, want station-1.m3u", st.LocalPath)
		}
	})

	t.Run("http failure reports status code", func(t *testing.T) {
		id, _ := m.Submit(ctx, downloads.Request{URI: server.URL + "/forbidden.pls", Title: "forbidden.pls", DestinationDir: dest})
		m.Wait()
		st, _ := m.Query(ctx, id)
		if st.State != downloads.StateFailed || st.Reason != http.StatusForbidden {
			t.Errorf("status = %+v, want failed 403", st)
		}
		if st.Title != "forbidden.pls" {
			t.Errorf("Title = %q", st.Title)
		}
	})

	t.Run("connection failure reports unknown", func(t *testing.T) {
		id, _ := m.Submit(ctx, downloads.Request{URI: "http://127.0.0.1:1/x.m3u", Title: "x.m3u", DestinationDir: dest})
		m.Wait()
		st, _ := m.Query(ctx, id)
		if st.State != downloads.StateFailed || st.Reason != downloads.ReasonUnknown {
			t.Errorf("status = %+v, want failed %d", st, downloads.ReasonUnknown)
		}
	})

	if done.len() != 4 {
		t.Errorf("completion handler called %d times, want 4", done.len())
	}
}

func TestManagerNetworkConstraint(t *testing.T) {
	server := newServer(t, "")
	ctx := context.Background()

	m := New(Options{Network: models.NetworkMobile})
	defer m.Close()

	id, err := m.Submit(ctx, downloads.Request{
		URI:            server.URL + "/station.m3u",
		Title:          "station.m3u",
		DestinationDir: t.TempDir(),
		Network:        models.NetworkWiFi,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	m.Wait()

	if st, _ := m.Query(ctx, id); st.State != downloads.StatePending {
		t.Fatalf("State = %v, want pending while on mobile", st.State)
	}

	m.SetNetwork(models.NetworkWiFi)
	m.Wait()
	if st, _ := m.Query(ctx, id); st.State != downloads.StateSucceeded {
		t.Errorf("State = %v, want succeeded on wifi", st.State)
	}
}

func TestManagerRemoveAndQuery(t *testing.T) {
	server := newServer(t, "")
	ctx := context.Background()
	m := New(Options{})
	defer m.Close()

	if st, err := m.Query(ctx, 42); err != nil || st.State != downloads.StateUnknown {
		t.Errorf("Query(unknown) = %+v, %v", st, err)
	}
	if err := m.Remove(ctx, 42); !errors.Is(err, shared.ErrUnknownDownload) {
		t.Errorf("Remove(unknown) = %v, want ErrUnknownDownload", err)
	}

	id, _ := m.Submit(ctx, downloads.Request{URI: server.URL + "/station.m3u", Title: "station.m3u", DestinationDir: t.TempDir()})
	m.Wait()
	st, _ := m.Query(ctx, id)

	if err := m.Remove(ctx, id); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(st.LocalPath); !os.IsNotExist(err) {
		t.Errorf("file not deleted by Remove, stat err = %v", err)
	}
	if st, _ := m.Query(ctx, id); st.State != downloads.StateUnknown {
		t.Errorf("State after remove = %v", st.State)
	}
	if len(m.Records()) != 0 {
		t.Errorf("Records() = %v, want empty", m.Records())
	}
}

func TestSubmitValidation(t *testing.T) {
	m := New(Options{})
	defer m.Close()

	if _, err := m.Submit(context.Background(), downloads.Request{URI: "http://example.com/a.m3u"}); !errors.Is(err, shared.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Submit(ctx, downloads.Request{URI: "http://example.com/a.m3u", Title: "a.m3u"}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestManagerFailureReasons(t *testing.T) {
	tests := []struct {
		name       string
		response   *http.Response
		err        error
		wantReason int
	}{
		{
			name:       "transport error",
			err:        errors.New("connection refused"),
			wantReason: downloads.ReasonUnknown,
		},
		{
			name:       "body read error",
			response:   &http.Response{StatusCode: http.StatusOK, Body: &th.FCloser{}, Header: http.Header{}},
			wantReason: downloads.ReasonHTTPDataError,
		},
		{
			name:       "server error",
			response:   &http.Response{StatusCode: http.StatusServiceUnavailable, Status: "503 Service Unavailable", Body: http.NoBody, Header: http.Header{}},
			wantReason: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &http.Client{Transport: th.NewMockRoundTripper(tt.response, tt.err)}
			m := New(Options{Client: client})
			defer m.Close()

			dest := t.TempDir()
			id, err := m.Submit(context.Background(), downloads.Request{URI: "http://radio.example.com/a.m3u", Title: "a.m3u", DestinationDir: dest})
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			m.Wait()

			st, _ := m.Query(context.Background(), id)
			if st.State != downloads.StateFailed || st.Reason != tt.wantReason {
				t.Errorf("status = %+v, want failed with reason %d", st, tt.wantReason)
			}
			if _, err := os.Stat(filepath.Join(dest, "a.m3u")); !os.IsNotExist(err) {
				t.Error("partial file left behind")
			}
		})
	}
}
