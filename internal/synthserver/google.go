package synthserver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"google.golang.org/api/option"
	texttospeechpb "google.golang.org/genproto/googleapis/cloud/texttospeech/v1"
)

// Google voice defaults.
const (
	DefaultLanguageCode = "he-IL"
	DefaultVoiceName    = "he-IL-Wavenet-B"
	DefaultSpeakingRate = 0.9
)

// ErrNoCredentials is returned when no service account JSON is configured.
var ErrNoCredentials = errors.New(CredentialsEnv + " environment variable is not set")

// GoogleConfig configures a GoogleSynthesizer.
type GoogleConfig struct {
	CredentialsJSON string
	LanguageCode    string
	VoiceName       string
	SpeakingRate    float64
}

// GoogleSynthesizer synthesizes MP3 audio with Google Cloud Text-to-Speech.
// The client is created on first use so the server can start, and report
// through the debug endpoint, without valid credentials.
type GoogleSynthesizer struct {
	cfg GoogleConfig

	mu     sync.Mutex
	client *texttospeech.Client
}

// NewGoogleSynthesizer fills in defaults for unset voice settings.
func NewGoogleSynthesizer(cfg GoogleConfig) *GoogleSynthesizer {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = DefaultLanguageCode
	}
	if cfg.VoiceName == "" {
		cfg.VoiceName = DefaultVoiceName
	}
	if cfg.SpeakingRate <= 0 {
		cfg.SpeakingRate = DefaultSpeakingRate
	}
	return &GoogleSynthesizer{cfg: cfg}
}

// Request builds the synthesis request for text.
func (g *GoogleSynthesizer) Request(text string) *texttospeechpb.SynthesizeSpeechRequest {
	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: g.cfg.LanguageCode,
			Name:         g.cfg.VoiceName,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			SpeakingRate:  g.cfg.SpeakingRate,
		},
	}
}

// Synthesize implements Synthesizer.
func (g *GoogleSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	client, err := g.connect(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.SynthesizeSpeech(ctx, g.Request(text))
	if err != nil {
		return nil, fmt.Errorf("google synthesis: %w", err)
	}
	return resp.GetAudioContent(), nil
}

func (g *GoogleSynthesizer) connect(ctx context.Context) (*texttospeech.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}
	if g.cfg.CredentialsJSON == "" {
		return nil, ErrNoCredentials
	}

	client, err := texttospeech.NewClient(ctx, option.WithCredentialsJSON([]byte(g.cfg.CredentialsJSON)))
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS client: %w", err)
	}
	g.client = client
	return client, nil
}

// Close releases the client, if one was created.
func (g *GoogleSynthesizer) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	return err
}
