// Package remote provides a transcriber for HTTP recognition services that
// expose a single POST {endpoint}/transcribe route.
//
// The utterance is uploaded as raw 16-bit little-endian mono PCM in the
// multipart file field "audio". Recognition hints travel as query
// parameters: language, beam_size and sample_rate. The service answers with
// a JSON object whose "text" field holds the transcript.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/kaiwa/pkg/errdefs"
	"github.com/MrWong99/kaiwa/pkg/provider/stt"
	"github.com/MrWong99/kaiwa/pkg/types"
)

var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithOptions sets language and beam size.
func WithOptions(o stt.Options) Option {
	return func(t *Transcriber) { t.opts = o }
}

// WithHTTPClient replaces the HTTP client. The default has a 60 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transcriber) { t.client = c }
}

// Transcriber implements stt.Transcriber against a remote /transcribe
// service.
type Transcriber struct {
	endpoint string
	opts     stt.Options
	client   *http.Client
}

// New returns a Transcriber for endpoint (e.g., "http://gpu-box:9000").
// A trailing slash is ignored.
func New(endpoint string, opts ...Option) (*Transcriber, error) {
	endpoint = strings.TrimRight(endpoint, "/")
	if endpoint == "" {
		return nil, errdefs.Configuration("remote stt", errors.New("endpoint must not be empty"))
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, errdefs.Configuration("remote stt", fmt.Errorf("parse endpoint: %w", err))
	}
	t := &Transcriber{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(t)
	}
	t.opts = t.opts.WithDefaults()
	return t, nil
}

// Transcribe uploads seg and returns the service's transcript. Any transport
// failure, non-2xx status or malformed body is a transcription error.
func (t *Transcriber) Transcribe(ctx context.Context, seg types.SpeechSegment) (string, error) {
	text, err := t.post(ctx, seg)
	if err != nil {
		return "", errdefs.Transcription("remote stt", err)
	}
	return text, nil
}

func (t *Transcriber) post(ctx context.Context, seg types.SpeechSegment) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", "audio.pcm")
	if err != nil {
		return "", fmt.Errorf("remote: create form file: %w", err)
	}
	if _, err := fw.Write(seg.PCM); err != nil {
		return "", fmt.Errorf("remote: write audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("remote: close multipart writer: %w", err)
	}

	q := url.Values{}
	q.Set("language", t.opts.Language)
	q.Set("beam_size", strconv.Itoa(t.opts.BeamSize))
	q.Set("sample_rate", strconv.Itoa(seg.SampleRate))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+"/transcribe?"+q.Encode(), &body)
	if err != nil {
		return "", fmt.Errorf("remote: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("remote: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("remote: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result struct {
		Text *string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("remote: parse JSON response: %w", err)
	}
	if result.Text == nil {
		return "", errors.New(`remote: response has no "text" field`)
	}
	return *result.Text, nil
}
