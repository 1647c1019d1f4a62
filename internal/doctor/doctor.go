// Package doctor checks that the pieces narration depends on are in place.
package doctor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lessonshelf/lectern/tts/engines/espeak"
)

// Status is the outcome of one check.
type Status struct {
	Name         string
	Required     bool
	OK           bool
	Detail       string // Path, version or response on success
	Err          error
	Instructions string
}

// Checker checks one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) Status
}

// Run executes the checkers concurrently and returns their results in
// order. It returns an error when a required check failed.
func Run(ctx context.Context, checkers ...Checker) ([]Status, error) {
	results := make([]Status, len(checkers))
	g, ctx := errgroup.WithContext(ctx)
	for i, c := range checkers {
		g.Go(func() error {
			results[i] = c.Check(ctx)
			if results[i].Name == "" {
				results[i].Name = c.Name()
			}
			return nil
		})
	}
	_ = g.Wait()

	var missing []string
	for _, s := range results {
		switch {
		case s.OK:
			log.Debug("Dependency found", "name", s.Name, "detail", s.Detail)
		case s.Required:
			missing = append(missing, s.Name)
			log.Error("Missing required dependency", "name", s.Name, "error", s.Err)
		default:
			log.Info("Optional dependency unavailable", "name", s.Name, "error", s.Err)
		}
	}
	if len(missing) > 0 {
		return results, fmt.Errorf("missing required dependencies: %s", strings.Join(missing, ", "))
	}
	return results, nil
}

// Espeak looks for the local synthesizer binary.
type Espeak struct {
	Binary   string // Found on PATH when empty
	Required bool
}

func (Espeak) Name() string { return "espeak" }

func (e Espeak) Check(ctx context.Context) Status {
	s := Status{Name: e.Name(), Required: e.Required}

	path := e.Binary
	if path == "" {
		found, err := espeak.FindExecutable()
		if err != nil {
			s.Err = err
			s.Instructions = espeakInstructions()
			return s
		}
		path = found
	} else if _, err := exec.LookPath(path); err != nil {
		s.Err = err
		s.Instructions = espeakInstructions()
		return s
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").Output() //nolint:gosec
	if err != nil {
		s.Err = fmt.Errorf("%s --version failed: %w", path, err)
		s.Instructions = espeakInstructions()
		return s
	}

	s.OK = true
	s.Detail = path
	if line, _, _ := strings.Cut(string(out), "\n"); line != "" {
		s.Detail += " (" + strings.TrimSpace(line) + ")"
	}
	return s
}

func espeakInstructions() string {
	switch runtime.GOOS {
	case "darwin":
		return "Install with: brew install espeak-ng"
	case "linux":
		return "Install with your package manager, e.g. apt install espeak-ng"
	case "windows":
		return "Download from: https://github.com/espeak-ng/espeak-ng/releases\n    Install and add to PATH"
	default:
		return "Download from: https://github.com/espeak-ng/espeak-ng"
	}
}

// Endpoint checks the synthesis service. Any HTTP response counts as
// reachable; an empty request is answered with 400 by a healthy service.
type Endpoint struct {
	URL      string
	Client   *http.Client // Five second timeout when nil
	Required bool
}

func (Endpoint) Name() string { return "synthesis service" }

func (e Endpoint) Check(ctx context.Context) Status {
	s := Status{Name: e.Name(), Required: e.Required}

	client := e.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader([]byte("{}")))
	if err != nil {
		s.Err = fmt.Errorf("invalid endpoint: %w", err)
		return s
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		s.Err = err
		s.Instructions = "Start one with: lectern serve"
		return s
	}
	_ = resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		s.Err = fmt.Errorf("service answered %s", resp.Status)
		s.Instructions = "Check the server log and its credentials"
		return s
	}
	s.OK = true
	s.Detail = e.URL
	return s
}

// WritableDir checks that a directory exists, or can be created, and accepts
// files.
type WritableDir struct {
	Label    string
	Path     string
	Required bool
}

func (d WritableDir) Name() string { return d.Label }

func (d WritableDir) Check(context.Context) Status {
	s := Status{Name: d.Name(), Required: d.Required}

	if err := os.MkdirAll(d.Path, 0o755); err != nil { //nolint:gosec
		s.Err = err
		return s
	}
	f, err := os.CreateTemp(d.Path, ".lectern-check-*")
	if err != nil {
		s.Err = err
		return s
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	s.OK = true
	s.Detail = d.Path
	return s
}

// Func adapts a function to a Checker.
type Func struct {
	Label    string
	Required bool
	Fn       func(ctx context.Context) (detail string, err error)
}

func (f Func) Name() string { return f.Label }

func (f Func) Check(ctx context.Context) Status {
	s := Status{Name: f.Label, Required: f.Required}
	if f.Fn == nil {
		s.Err = errors.New("no check defined")
		return s
	}
	detail, err := f.Fn(ctx)
	s.Detail, s.Err, s.OK = detail, err, err == nil
	return s
}
