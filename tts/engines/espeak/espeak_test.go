package espeak

import (
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
	"time"

	"github.com/lessonshelf/lectern/tts"
	"github.com/lessonshelf/lectern/tts/engines/local"
)

const voicesOutput = `Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  en-us           --/M      English_(America)  gmw/en-US            (en 3)
 5  he              --/M      Hebrew             sem/he

`

func TestParseVoices(t *testing.T) {
	voices := ParseVoices(voicesOutput)
	want := []tts.Voice{
		{ID: "en-us", Name: "English_(America)", Language: "en-us"},
		{ID: "he", Name: "Hebrew", Language: "he"},
	}
	if !reflect.DeepEqual(voices, want) {
		t.Errorf("Expected %v, got %v", want, voices)
	}
}

func TestArgs(t *testing.T) {
	tests := []struct {
		name string
		u    local.Utterance
		want []string
	}{
		{"default voice", local.Utterance{Rate: 1}, []string{"-s", "175", "--stdin"}},
		{"voice and rate", local.Utterance{Voice: tts.Voice{ID: "he"}, Rate: 0.9}, []string{"-v", "he", "-s", "157", "--stdin"}},
		{"unset rate", local.Utterance{}, []string{"-s", "175", "--stdin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Args(&tt.u); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestWordStarts(t *testing.T) {
	tests := []struct {
		text string
		want []int
	}{
		{"", nil},
		{"one", []int{0}},
		{"one two  three", []int{0, 4, 9}},
		{"  שלום עולם", []int{2, 7}},
	}

	for _, tt := range tests {
		if got := WordStarts(tt.text); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("WordStarts(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

// fakeEspeak writes a shell script that answers --voices and otherwise
// consumes stdin like espeak would.
func fakeEspeak(t *testing.T, exitCode int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "espeak-ng")
	script := "#!/bin/sh\n" +
		"if [ \"$1\" = \"--voices\" ]; then\n" +
		"  echo 'Pty Language Age/Gender VoiceName File'\n" +
		"  echo ' 5  he --/M Hebrew sem/he'\n" +
		"  exit 0\n" +
		"fi\n" +
		"cat >/dev/null\n" +
		"exit " + string(rune('0'+exitCode)) + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("Failed to write fake espeak: %v", err)
	}
	return path
}

func TestSynthesizerLoadsVoicesAndSpeaks(t *testing.T) {
	s, err := New(fakeEspeak(t, 0))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	b := local.NewBackend(s)
	if err := b.Init(t.Context(), "he-IL"); err != nil {
		t.Fatalf("Expected voices to load, got %v", err)
	}

	ended := make(chan struct{})
	if err := b.Speak(t.Context(), "שלום", tts.Listener{OnEnd: func() { close(ended) }}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	select {
	case <-ended:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected OnEnd after the process exits")
	}
}

func TestSynthesizerReportsFailure(t *testing.T) {
	s, err := New(fakeEspeak(t, 1))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	failed := make(chan error, 1)
	err = s.Speak(&local.Utterance{Text: "text", Rate: 1, OnError: func(err error) { failed <- err }})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	select {
	case err := <-failed:
		if tts.KindOf(err) != tts.KindSynthesisFailed {
			t.Errorf("Expected synthesis-failed, got %v", tts.KindOf(err))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Expected OnError after a failing exit")
	}
}

func TestNewMissingBinary(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Expected error for a missing binary")
	}
}

func TestSynthesizerPauseResume(t *testing.T) {
	s, err := New(fakeEspeak(t, 0))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Skipf("sleep unavailable: %v", err)
	}
	sp := &speech{u: &local.Utterance{Text: "text"}, cmd: cmd, quit: make(chan struct{})}
	s.mu.Lock()
	s.speech = sp
	s.mu.Unlock()
	t.Cleanup(func() { _ = cmd.Wait() })

	s.Pause()
	s.Pause()
	if !s.isPaused(sp) {
		t.Error("Expected the process to be paused")
	}
	s.Resume()
	if s.isPaused(sp) {
		t.Error("Expected the process to be resumed")
	}

	s.Cancel()
	select {
	case <-sp.quit:
	default:
		t.Error("Expected quit to be closed on cancel")
	}
	// Controls after cancel are no-ops.
	s.Pause()
	s.Resume()
	s.Cancel()
}
