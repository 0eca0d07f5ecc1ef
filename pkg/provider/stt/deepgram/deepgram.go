// Package deepgram provides a Deepgram-backed transcriber using the
// pre-recorded audio endpoint (POST /v1/listen). Each utterance is sent as
// raw linear16 PCM in the request body.
package deepgram

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
	"time"

	"github.com/MrWong99/kaiwa/pkg/errdefs"
	"github.com/MrWong99/kaiwa/pkg/provider/stt"
	"github.com/MrWong99/kaiwa/pkg/types"
)

const (
	defaultEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
)

var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring the Deepgram Transcriber.
type Option func(*Transcriber)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(t *Transcriber) {
		t.model = model
	}
}

// WithOptions sets the recognition language. Deepgram has no beam size
// parameter; BeamSize is ignored.
func WithOptions(o stt.Options) Option {
	return func(t *Transcriber) {
		t.opts = o
	}
}

// WithEndpoint overrides the listen URL. Used by tests and self-hosted
// deployments.
func WithEndpoint(endpoint string) Option {
	return func(t *Transcriber) {
		t.endpoint = endpoint
	}
}

// Transcriber implements stt.Transcriber backed by the Deepgram REST API.
type Transcriber struct {
	apiKey   string
	model    string
	endpoint string
	opts     stt.Options
	client   *http.Client
}

// New creates a new Deepgram Transcriber. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errdefs.Configuration("deepgram", errors.New("apiKey must not be empty"))
	}
	t := &Transcriber{
		apiKey:   apiKey,
		model:    defaultModel,
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(t)
	}
	t.opts = t.opts.WithDefaults()
	return t, nil
}

// listenResponse is the subset of the pre-recorded response we read.
type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe uploads seg and returns the top alternative of the first
// channel.
func (t *Transcriber) Transcribe(ctx context.Context, seg types.SpeechSegment) (string, error) {
	text, err := t.listen(ctx, seg)
	if err != nil {
		return "", errdefs.Transcription("deepgram", err)
	}
	return text, nil
}

func (t *Transcriber) listen(ctx context.Context, seg types.SpeechSegment) (string, error) {
	q := url.Values{}
	q.Set("model", t.model)
	q.Set("language", t.opts.Language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(seg.SampleRate))
	q.Set("channels", "1")
	q.Set("punctuate", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+"?"+q.Encode(), bytes.NewReader(seg.PCM))
	if err != nil {
		return "", fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+t.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("deepgram: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var lr listenResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", fmt.Errorf("deepgram: parse response: %w", err)
	}
	if len(lr.Results.Channels) == 0 || len(lr.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(lr.Results.Channels[0].Alternatives[0].Transcript), nil
}
