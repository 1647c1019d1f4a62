package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lessonshelf/lectern/tts"
)

func synthesisServer(t *testing.T, handler func(w http.ResponseWriter, req Request)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %q", ct)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient(t *testing.T) {
	t.Run("MissingEndpoint", func(t *testing.T) {
		_, err := NewClient(ClientConfig{})
		if err == nil || !strings.Contains(err.Error(), "endpoint is required") {
			t.Errorf("Expected error about endpoint, got: %v", err)
		}
	})

	t.Run("ValidConfig", func(t *testing.T) {
		c, err := NewClient(ClientConfig{Endpoint: "http://localhost/api/text-to-speech", RequestsPerMinute: 30})
		if err != nil {
			t.Fatalf("Failed to create client: %v", err)
		}
		if c.limiter == nil {
			t.Error("Expected a rate limiter")
		}
	})
}

func TestClientSynthesize(t *testing.T) {
	audio := []byte("ID3 fake mp3 payload")

	t.Run("Success", func(t *testing.T) {
		srv, _ := synthesisServer(t, func(w http.ResponseWriter, req Request) {
			if req.Text != "שלום" {
				t.Errorf("Expected text 'שלום', got %q", req.Text)
			}
			writeJSON(w, http.StatusOK, Response{Success: true, Audio: base64.StdEncoding.EncodeToString(audio), Format: "mp3"})
		})

		c, _ := NewClient(ClientConfig{Endpoint: srv.URL})
		got, err := c.Synthesize(context.Background(), "שלום")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if string(got) != string(audio) {
			t.Errorf("Expected decoded audio, got %q", got)
		}
	})

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"ServerError", http.StatusInternalServerError, `{"error":"Failed to generate speech","details":"quota"}`, nil},
		{"NotJSON", http.StatusOK, `<html>oops</html>`, ErrMalformedResponse},
		{"NoSuccess", http.StatusOK, `{"success":false,"audio":"QUJD"}`, ErrMissingAudio},
		{"NoAudio", http.StatusOK, `{"success":true}`, ErrMissingAudio},
		{"BadBase64", http.StatusOK, `{"success":true,"audio":"***"}`, ErrDecodeAudio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := synthesisServer(t, func(w http.ResponseWriter, _ Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			c, _ := NewClient(ClientConfig{Endpoint: srv.URL})
			_, err := c.Synthesize(context.Background(), "text")
			if err == nil {
				t.Fatal("Expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if tt.status != http.StatusOK {
				var se *StatusError
				if !errors.As(err, &se) {
					t.Fatalf("Expected StatusError, got %T", err)
				}
				if se.Code != tt.status || se.Body != "Failed to generate speech" {
					t.Errorf("Unexpected status error: %+v", se)
				}
			}
		})
	}

	t.Run("InvalidText", func(t *testing.T) {
		srv, hits := synthesisServer(t, func(w http.ResponseWriter, _ Request) {
			writeJSON(w, http.StatusOK, Response{Success: true, Audio: "QUJD"})
		})
		c, _ := NewClient(ClientConfig{Endpoint: srv.URL})

		if _, err := c.Synthesize(context.Background(), "  "); !errors.Is(err, tts.ErrEmptyText) {
			t.Errorf("Expected ErrEmptyText, got %v", err)
		}
		if _, err := c.Synthesize(context.Background(), "\xff\xfe"); !errors.Is(err, tts.ErrInvalidText) {
			t.Errorf("Expected ErrInvalidText, got %v", err)
		}
		if hits.Load() != 0 {
			t.Errorf("Expected no requests for invalid text, got %d", hits.Load())
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		release := make(chan struct{})
		srv, _ := synthesisServer(t, func(w http.ResponseWriter, _ Request) {
			<-release
			writeJSON(w, http.StatusOK, Response{Success: true, Audio: "QUJD"})
		})
		defer close(release)

		c, _ := NewClient(ClientConfig{Endpoint: srv.URL})
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		if _, err := c.Synthesize(ctx, "hung"); !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})
}

type mapCache map[string][]byte

func (m mapCache) Get(key string) ([]byte, bool) { v, ok := m[key]; return v, ok }
func (m mapCache) Put(key string, v []byte) error { m[key] = v; return nil }

func TestClientCache(t *testing.T) {
	srv, hits := synthesisServer(t, func(w http.ResponseWriter, _ Request) {
		writeJSON(w, http.StatusOK, Response{Success: true, Audio: "QUJD", Format: "mp3"})
	})

	c, _ := NewClient(ClientConfig{Endpoint: srv.URL, Cache: mapCache{}})
	for i := 0; i < 3; i++ {
		got, err := c.Synthesize(context.Background(), "cached paragraph")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if string(got) != "ABC" {
			t.Errorf("Expected ABC, got %q", got)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("Expected 1 request, got %d", hits.Load())
	}
}

func TestClientHasNoDeadline(t *testing.T) {
	c, err := NewClient(ClientConfig{Endpoint: "http://localhost:8080/api/text-to-speech"})
	if err != nil {
		t.Fatal(err)
	}
	if c.http.Timeout != 0 {
		t.Errorf("Expected no request timeout, got %v", c.http.Timeout)
	}
}

func TestClientCancelEndsHungRequest(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	c, _ := NewClient(ClientConfig{Endpoint: srv.URL})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := c.Synthesize(ctx, "shalom")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestClientCoalescesInFlightRequests(t *testing.T) {
	release := make(chan struct{})
	srv, hits := synthesisServer(t, func(w http.ResponseWriter, _ Request) {
		<-release
		writeJSON(w, http.StatusOK, Response{Success: true, Audio: "QUJD", Format: "mp3"})
	})
	c, _ := NewClient(ClientConfig{Endpoint: srv.URL, RequestsPerMinute: 1})

	results := make(chan error, 2)
	synthesize := func() {
		got, err := c.Synthesize(context.Background(), "next paragraph")
		if err == nil && string(got) != "ABC" {
			err = errors.New("unexpected audio " + string(got))
		}
		results <- err
	}

	go synthesize()
	waitForHits(t, hits, 1)
	go synthesize()
	time.Sleep(50 * time.Millisecond)
	close(release)

	for range 2 {
		if err := <-results; err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("Expected one request for both callers, got %d", hits.Load())
	}
}

func TestClientRetriesWhenJoinedRequestIsCancelled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			<-r.Context().Done()
			return
		}
		writeJSON(w, http.StatusOK, Response{Success: true, Audio: "QUJD", Format: "mp3"})
	}))
	defer srv.Close()
	c, _ := NewClient(ClientConfig{Endpoint: srv.URL})

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	go func() { _, _ = c.Synthesize(leaderCtx, "paragraph") }()
	waitForHits(t, &calls, 1)

	done := make(chan error, 1)
	go func() {
		_, err := c.Synthesize(context.Background(), "paragraph")
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancelLeader()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected the joined caller to retry, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the joined caller")
	}
	if calls.Load() != 2 {
		t.Errorf("Expected a second request, got %d", calls.Load())
	}
}

func waitForHits(t *testing.T, hits *atomic.Int32, n int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %d requests", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
