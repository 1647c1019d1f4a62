package doctor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun(t *testing.T) {
	ok := Func{Label: "ok", Required: true, Fn: func(context.Context) (string, error) { return "fine", nil }}
	optional := Func{Label: "optional", Fn: func(context.Context) (string, error) { return "", errors.New("absent") }}
	required := Func{Label: "required", Required: true, Fn: func(context.Context) (string, error) { return "", errors.New("absent") }}

	tests := []struct {
		name     string
		checkers []Checker
		wantErr  bool
	}{
		{"all ok", []Checker{ok}, false},
		{"optional missing", []Checker{ok, optional}, false},
		{"required missing", []Checker{ok, optional, required}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := Run(context.Background(), tt.checkers...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(results) != len(tt.checkers) {
				t.Fatalf("Expected %d results, got %d", len(tt.checkers), len(results))
			}
			if tt.wantErr && !strings.Contains(err.Error(), "required") {
				t.Errorf("Expected error to name the failed check, got %q", err)
			}
		})
	}
}

func TestFuncWithoutCheck(t *testing.T) {
	s := Func{Label: "empty"}.Check(context.Background())
	if s.OK || s.Err == nil {
		t.Errorf("Expected failure without a check function, got %+v", s)
	}
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		status int
		wantOK bool
	}{
		{"bad request means reachable", http.StatusBadRequest, true},
		{"ok", http.StatusOK, true},
		{"server error", http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("Expected POST, got %s", r.Method)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			s := Endpoint{URL: srv.URL}.Check(context.Background())
			if s.OK != tt.wantOK {
				t.Errorf("Expected OK=%v, got %+v", tt.wantOK, s)
			}
		})
	}
}

func TestEndpointUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := Endpoint{URL: url}.Check(context.Background())
	if s.OK {
		t.Fatal("Expected closed server to be unreachable")
	}
	if s.Instructions == "" {
		t.Error("Expected instructions for an unreachable service")
	}
}

func TestWritableDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")

	s := WritableDir{Label: "cache", Path: dir}.Check(context.Background())
	if !s.OK {
		t.Fatalf("Expected writable dir, got %+v", s)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected the test file to be removed, found %d entries", len(entries))
	}
}

func TestEspeakMissingBinary(t *testing.T) {
	s := Espeak{Binary: filepath.Join(t.TempDir(), "no-such-espeak")}.Check(context.Background())
	if s.OK {
		t.Fatal("Expected missing binary to fail")
	}
	if s.Instructions == "" {
		t.Error("Expected install instructions")
	}
}
