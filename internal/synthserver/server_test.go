package synthserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/lessonshelf/lectern/tts/engines/remote"
)

type fakeSynth struct {
	audio []byte
	err   error
	texts []string
}

func (f *fakeSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.texts = append(f.texts, text)
	return f.audio, f.err
}

func newRouter(synth Synthesizer, cfg Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(synth, cfg, log.New(io.Discard))
}

func do(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) remote.Response {
	t.Helper()
	var resp remote.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Expected JSON body, got %q", rec.Body.String())
	}
	return resp
}

func TestSynthesizeSuccess(t *testing.T) {
	synth := &fakeSynth{audio: []byte("mp3-bytes")}
	r := newRouter(synth, Config{})

	rec := do(r, http.MethodPost, SynthesisPath, `{"text":"שלום"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	resp := decode(t, rec)
	if !resp.Success || resp.Format != "mp3" {
		t.Errorf("Expected success with mp3, got %+v", resp)
	}
	if got, _ := base64.StdEncoding.DecodeString(resp.Audio); string(got) != "mp3-bytes" {
		t.Errorf("Expected encoded audio, got %q", resp.Audio)
	}
	if len(synth.texts) != 1 || synth.texts[0] != "שלום" {
		t.Errorf("Expected text forwarded, got %v", synth.texts)
	}
}

func TestSynthesizeErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		err    error
		status int
	}{
		{"missing text", http.MethodPost, `{}`, nil, http.StatusBadRequest},
		{"blank text", http.MethodPost, `{"text":"  "}`, nil, http.StatusBadRequest},
		{"not json", http.MethodPost, `text=hi`, nil, http.StatusBadRequest},
		{"wrong method", http.MethodGet, ``, nil, http.StatusMethodNotAllowed},
		{"backend failure", http.MethodPost, `{"text":"hi"}`, errors.New("quota exceeded"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(&fakeSynth{err: tt.err}, Config{})
			rec := do(r, tt.method, SynthesisPath, tt.body, nil)
			if rec.Code != tt.status {
				t.Fatalf("Expected %d, got %d", tt.status, rec.Code)
			}
			resp := decode(t, rec)
			if resp.Success || resp.Error == "" {
				t.Errorf("Expected error body, got %+v", resp)
			}
			if tt.err != nil && resp.Details != tt.err.Error() {
				t.Errorf("Expected details %q, got %q", tt.err.Error(), resp.Details)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	t.Run("any origin", func(t *testing.T) {
		r := newRouter(&fakeSynth{audio: []byte("a")}, Config{AllowedOrigins: []string{"*"}})
		rec := do(r, http.MethodPost, SynthesisPath, `{"text":"hi"}`, map[string]string{"Origin": "https://lessons.example"})
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Expected *, got %q", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		r := newRouter(&fakeSynth{}, Config{AllowedOrigins: []string{"https://lessons.example"}})
		rec := do(r, http.MethodOptions, SynthesisPath, ``, map[string]string{
			"Origin":                        "https://lessons.example",
			"Access-Control-Request-Method": http.MethodPost,
		})
		if rec.Code != http.StatusNoContent {
			t.Errorf("Expected 204, got %d", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://lessons.example" {
			t.Errorf("Expected allowed origin echoed, got %q", got)
		}
	})
}

func TestDebugEndpoint(t *testing.T) {
	env := map[string]string{
		CredentialsEnv: `{"project_id":"lessons","private_key":"-----KEY-----","client_email":"narrator@lessons.iam.gserviceaccount.com","type":"service_account"}`,
	}
	r := newRouter(&fakeSynth{}, Config{Getenv: func(k string) string { return env[k] }})

	rec := do(r, http.MethodGet, DebugPath, ``, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "-----KEY-----") {
		t.Error("Expected private key to stay out of the report")
	}

	var report DebugReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("Expected JSON report, got %v", err)
	}
	if !report.OK {
		t.Errorf("Expected OK report, got %+v", report)
	}
	if report.Info.ClientEmail != "narrator@l..." {
		t.Errorf("Expected redacted email, got %q", report.Info.ClientEmail)
	}
}

func TestDiagnose(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		ok      bool
		wantErr bool
	}{
		{"unset", map[string]string{}, false, true},
		{"bad json", map[string]string{CredentialsEnv: "{"}, false, false},
		{"missing key", map[string]string{CredentialsEnv: `{"project_id":"p","client_email":"e"}`}, false, false},
		{"legacy only", map[string]string{legacyCredentialsEnv: "/tmp/key.json"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Diagnose(func(k string) string { return tt.env[k] })
			if r.OK != tt.ok {
				t.Errorf("Expected ok=%v, got %v", tt.ok, r.OK)
			}
			if (r.Error != "") != tt.wantErr {
				t.Errorf("Expected error=%v, got %q", tt.wantErr, r.Error)
			}
			if len(r.Recommendations) == 0 {
				t.Error("Expected recommendations for a broken setup")
			}
		})
	}
}

func TestGoogleSynthesizer(t *testing.T) {
	g := NewGoogleSynthesizer(GoogleConfig{})

	req := g.Request("שלום")
	if req.GetVoice().GetName() != DefaultVoiceName || req.GetVoice().GetLanguageCode() != DefaultLanguageCode {
		t.Errorf("Expected default voice, got %v", req.GetVoice())
	}
	if req.GetAudioConfig().GetSpeakingRate() != DefaultSpeakingRate {
		t.Errorf("Expected rate %v, got %v", DefaultSpeakingRate, req.GetAudioConfig().GetSpeakingRate())
	}
	if req.GetInput().GetText() != "שלום" {
		t.Errorf("Expected input text, got %q", req.GetInput().GetText())
	}

	if _, err := g.Synthesize(context.Background(), "hi"); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Expected ErrNoCredentials, got %v", err)
	}
	if err := g.Close(); err != nil {
		t.Errorf("Expected no error closing an unused synthesizer, got %v", err)
	}
}
