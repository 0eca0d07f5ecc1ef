// Package voicevox provides a tts.Provider backed by a VOICEVOX engine.
//
// Synthesis is a two-step exchange with the engine's REST API:
//
//	POST /audio_query?speaker={style id}&text={text}  → synthesis query JSON
//	POST /synthesis?speaker={style id}  (body: query) → WAV bytes
//
// A persona names a VOICEVOX speaker (e.g., "四国めたん"); its styles are looked
// up via GET /speakers. Without a persona the provider uses [DefaultStyles].
package voicevox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/kaiwa/internal/observe"
	"github.com/MrWong99/kaiwa/pkg/errdefs"
	"github.com/MrWong99/kaiwa/pkg/provider/tts"
	"github.com/MrWong99/kaiwa/pkg/types"
)

// DefaultEndpoint is the address a local VOICEVOX engine listens on.
const DefaultEndpoint = "http://127.0.0.1:50021"

// DefaultStyles are the 四国めたん style ids keyed by the tone names the stock
// system prompt uses. They apply when no persona is configured.
var DefaultStyles = []types.VoiceStyle{
	{ID: 2, Name: "普通"},
	{ID: 0, Name: "あまあま"},
	{ID: 6, Name: "ツンツン"},
	{ID: 4, Name: "セクシー"},
	{ID: 36, Name: "ささやき"},
	{ID: 37, Name: "ヒソヒソ"},
}

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithPersona selects the VOICEVOX speaker whose styles are offered.
func WithPersona(name string) Option {
	return func(p *Provider) { p.persona = name }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider implements tts.Provider against a VOICEVOX engine.
type Provider struct {
	endpoint   string
	persona    string
	httpClient *http.Client

	mu     sync.Mutex
	styles []types.VoiceStyle
}

// New creates a Provider for the engine at endpoint. An empty endpoint means
// DefaultEndpoint.
func New(endpoint string, opts ...Option) (*Provider, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, errdefs.Configuration("voicevox", fmt.Errorf("parse endpoint: %w", err))
	}
	p := &Provider{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Speaker is one entry of the /speakers catalogue.
type Speaker struct {
	Name        string `json:"name"`
	SpeakerUUID string `json:"speaker_uuid"`
	Styles      []struct {
		Name string `json:"name"`
		ID   int    `json:"id"`
		Type string `json:"type,omitempty"`
	} `json:"styles"`
}

// Speakers returns the engine's speaker catalogue.
func (p *Provider) Speakers(ctx context.Context) ([]Speaker, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/speakers", nil)
	if err != nil {
		return nil, fmt.Errorf("voicevox: create speakers request: %w", err)
	}
	body, err := p.do(req)
	if err != nil {
		return nil, err
	}
	var speakers []Speaker
	if err := json.Unmarshal(body, &speakers); err != nil {
		return nil, fmt.Errorf("voicevox: decode speakers: %w", err)
	}
	return speakers, nil
}

// Styles implements tts.Provider. The persona's styles are fetched once and
// cached; talk styles only.
func (p *Provider) Styles(ctx context.Context) ([]types.VoiceStyle, error) {
	if p.persona == "" {
		return append([]types.VoiceStyle(nil), DefaultStyles...), nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.styles != nil {
		return append([]types.VoiceStyle(nil), p.styles...), nil
	}

	speakers, err := p.Speakers(ctx)
	if err != nil {
		return nil, errdefs.Synthesis("voicevox speakers", err)
	}
	names := make([]string, 0, len(speakers))
	for _, sp := range speakers {
		names = append(names, sp.Name)
		if sp.Name != p.persona {
			continue
		}
		var styles []types.VoiceStyle
		for _, st := range sp.Styles {
			if st.Type != "" && st.Type != "talk" {
				continue
			}
			styles = append(styles, types.VoiceStyle{ID: st.ID, Name: st.Name})
		}
		if len(styles) == 0 {
			return nil, errdefs.Configuration("voicevox", fmt.Errorf("speaker %q has no talk styles", p.persona))
		}
		p.styles = styles
		return append([]types.VoiceStyle(nil), styles...), nil
	}
	return nil, errdefs.Configuration("voicevox", fmt.Errorf("unknown speaker %q; available: %s", p.persona, strings.Join(names, ", ")))
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, style types.VoiceStyle) ([]byte, error) {
	query, err := p.AudioQuery(ctx, style.ID, text)
	if err != nil {
		return nil, errdefs.Synthesis("voicevox audio_query", err)
	}
	wav, err := p.Synthesis(ctx, style.ID, query)
	if err != nil {
		return nil, errdefs.Synthesis("voicevox synthesis", err)
	}
	return wav, nil
}

// AudioQuery asks the engine for the synthesis query of text in style
// speaker. The returned JSON is opaque and passed to Synthesis unchanged.
func (p *Provider) AudioQuery(ctx context.Context, speaker int, text string) (json.RawMessage, error) {
	ctx, span := observe.StartSpan(ctx, "voicevox.audio_query")
	defer span.End()

	q := url.Values{}
	q.Set("speaker", strconv.Itoa(speaker))
	q.Set("text", text)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/audio_query?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("voicevox: create audio_query request: %w", err)
	}
	body, err := p.do(req)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, errors.New("voicevox: audio_query returned invalid JSON")
	}
	return body, nil
}

// Synthesis renders query with style speaker and returns the WAV bytes.
func (p *Provider) Synthesis(ctx context.Context, speaker int, query json.RawMessage) ([]byte, error) {
	ctx, span := observe.StartSpan(ctx, "voicevox.synthesis")
	defer span.End()

	q := url.Values{}
	q.Set("speaker", strconv.Itoa(speaker))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/synthesis?"+q.Encode(), bytes.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("voicevox: create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")
	return p.do(req)
}

// do executes req and returns the body of a 200 response.
func (p *Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voicevox: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("voicevox: read %s response: %w", req.URL.Path, err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(body) > 512 {
			body = body[:512]
		}
		return nil, fmt.Errorf("voicevox: %s returned status %d: %s", req.URL.Path, resp.StatusCode, bytes.TrimSpace(body))
	}
	return body, nil
}
