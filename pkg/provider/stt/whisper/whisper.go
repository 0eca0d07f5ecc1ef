// Package whisper provides whisper.cpp-backed transcribers.
//
// [Server] talks to a running whisper-server binary over its REST API
// (POST /inference). [Native] links whisper.cpp through its cgo bindings and
// runs the model in process. Both take one complete utterance per call; the
// segmenter upstream has already decided where speech starts and ends.
//
// Usage:
//
//	tr, err := whisper.NewServer("http://localhost:8080",
//	    whisper.WithOptions(stt.Options{Language: "ja", BeamSize: 5}),
//	)
//	text, err := tr.Transcribe(ctx, seg)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/kaiwa/pkg/audio/wav"
	"github.com/MrWong99/kaiwa/pkg/errdefs"
	"github.com/MrWong99/kaiwa/pkg/provider/stt"
	"github.com/MrWong99/kaiwa/pkg/types"
)

// Compile-time assertion that Server implements stt.Transcriber.
var _ stt.Transcriber = (*Server)(nil)

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "large-v3-turbo"). When empty the server uses whichever model it
// was started with. This is the default.
func WithModel(model string) Option {
	return func(s *Server) {
		s.model = model
	}
}

// WithOptions sets language and beam size.
func WithOptions(o stt.Options) Option {
	return func(s *Server) {
		s.opts = o
	}
}

// WithHTTPClient replaces the HTTP client. The default has a 30 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) {
		s.httpClient = c
	}
}

// Server implements stt.Transcriber backed by a whisper.cpp HTTP server.
type Server struct {
	serverURL  string
	model      string
	opts       stt.Options
	httpClient *http.Client
}

// NewServer creates a Server that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func NewServer(serverURL string, opts ...Option) (*Server, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	s := &Server{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	s.opts = s.opts.WithDefaults()
	return s, nil
}

// Transcribe encodes seg as a WAV file and POSTs it to the /inference
// endpoint as multipart/form-data.
func (s *Server) Transcribe(ctx context.Context, seg types.SpeechSegment) (string, error) {
	text, err := s.infer(ctx, seg)
	if err != nil {
		return "", errdefs.Transcription("whisper server", err)
	}
	return strings.TrimSpace(text), nil
}

func (s *Server) infer(ctx context.Context, seg types.SpeechSegment) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav.Encode(seg.PCM, seg.SampleRate, 1)); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := [][2]string{
		{"language", s.opts.Language},
		{"beam_size", strconv.Itoa(s.opts.BeamSize)},
		{"response_format", "json"},
		{"model", s.model},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.Text, nil
}
