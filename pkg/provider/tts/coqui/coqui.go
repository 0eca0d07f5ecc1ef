// Package coqui provides a tts.Provider backed by a standard Coqui TTS server
// (ghcr.io/coqui-ai/tts-cpu).
//
// Synthesis is a single GET /api/tts call with URL query parameters and returns
// a WAV clip. The voice catalogue comes from GET /details: each speaker of a
// multi-speaker model becomes one style, a single-speaker model exposes one
// style named after the model.
//
//	p, _ := coqui.New("http://localhost:5002", coqui.WithLanguage("ja"))
//	styles, _ := p.Styles(ctx)
//	wav, _ := p.Synthesize(ctx, "こんにちは", styles[0])
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/kaiwa/internal/observe"
	"github.com/MrWong99/kaiwa/pkg/errdefs"
	"github.com/MrWong99/kaiwa/pkg/provider/tts"
	"github.com/MrWong99/kaiwa/pkg/types"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultTimeout  = 30 * time.Second
	apiTTSEndpoint  = "/api/tts"
	detailsEndpoint = "/details"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language_id sent to multi-lingual models (e.g., "ja").
// Empty means the server default.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements tts.Provider backed by a Coqui TTS server.
// It is safe for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
}

// New creates a Provider that targets the server at serverURL
// (e.g., "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errdefs.Configuration("coqui", errors.New("server URL must not be empty"))
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// detailsResponse is the JSON body returned by GET /details.
// Speakers is empty for single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// Styles implements tts.Provider. Style IDs are catalogue positions; the
// speaker name is what the server receives.
func (p *Provider) Styles(ctx context.Context) ([]types.VoiceStyle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+detailsEndpoint, nil)
	if err != nil {
		return nil, errdefs.Synthesis("coqui details", err)
	}
	body, err := p.do(req)
	if err != nil {
		return nil, errdefs.Synthesis("coqui details", err)
	}

	var details detailsResponse
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, errdefs.Synthesis("coqui details", fmt.Errorf("decode: %w", err))
	}
	if len(details.Speakers) == 0 {
		name := details.ModelName
		if name == "" {
			name = "default"
		}
		return []types.VoiceStyle{{ID: 0, Name: name}}, nil
	}
	styles := make([]types.VoiceStyle, len(details.Speakers))
	for i, s := range details.Speakers {
		styles[i] = types.VoiceStyle{ID: i, Name: s}
	}
	return styles, nil
}

// Synthesize implements tts.Provider. For single-speaker models the style only
// labels the clip and no speaker_id is sent.
func (p *Provider) Synthesize(ctx context.Context, text string, style types.VoiceStyle) ([]byte, error) {
	ctx, span := observe.StartSpan(ctx, "coqui.tts")
	defer span.End()

	q := url.Values{}
	q.Set("text", text)
	if style.Name != "" && style.Name != "default" {
		q.Set("speaker_id", style.Name)
	}
	if p.language != "" {
		q.Set("language_id", p.language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errdefs.Synthesis("coqui tts", err)
	}
	req.Header.Set("Accept", "audio/wav")

	wav, err := p.do(req)
	if err != nil {
		return nil, errdefs.Synthesis("coqui tts", err)
	}
	if len(wav) < 12 || !bytes.Equal(wav[0:4], []byte("RIFF")) || !bytes.Equal(wav[8:12], []byte("WAVE")) {
		return nil, errdefs.Synthesis("coqui tts", errors.New("response is not a WAV file"))
	}
	return wav, nil
}

func (p *Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read %s response: %w", req.URL.Path, err)
	}
	return body, nil
}
