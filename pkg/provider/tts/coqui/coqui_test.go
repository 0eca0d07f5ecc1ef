package coqui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/kaiwa/pkg/audio/wav"
	"github.com/MrWong99/kaiwa/pkg/errdefs"
	"github.com/MrWong99/kaiwa/pkg/types"
)

// mustNew is a test helper that calls New and fails the test on error.
func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New(%q): unexpected error: %v", serverURL, err)
	}
	return p
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := mustNew(t, "http://localhost:5002/")
		if p.serverURL != "http://localhost:5002" {
			t.Errorf("serverURL = %q, want trailing slash stripped", p.serverURL)
		}
		if p.httpClient.Timeout != defaultTimeout {
			t.Errorf("timeout = %v, want %v", p.httpClient.Timeout, defaultTimeout)
		}
	})

	t.Run("options", func(t *testing.T) {
		p := mustNew(t, "http://localhost:5002", WithLanguage("ja"), WithTimeout(5*time.Second))
		if p.language != "ja" {
			t.Errorf("language = %q, want %q", p.language, "ja")
		}
		if p.httpClient.Timeout != 5*time.Second {
			t.Errorf("timeout = %v, want 5s", p.httpClient.Timeout)
		}
	})

	t.Run("empty URL", func(t *testing.T) {
		_, err := New("")
		if !errors.Is(err, errdefs.ErrConfiguration) {
			t.Fatalf("New(\"\") error = %v, want ErrConfiguration", err)
		}
	})
}

func TestStyles(t *testing.T) {
	tests := []struct {
		name    string
		details detailsResponse
		want    []types.VoiceStyle
	}{
		{
			name:    "multi speaker",
			details: detailsResponse{ModelName: "vits", Speakers: []string{"p225", "p226"}},
			want:    []types.VoiceStyle{{ID: 0, Name: "p225"}, {ID: 1, Name: "p226"}},
		},
		{
			name:    "single speaker",
			details: detailsResponse{ModelName: "tts_models/ja/kokoro/tacotron2-DDC"},
			want:    []types.VoiceStyle{{ID: 0, Name: "tts_models/ja/kokoro/tacotron2-DDC"}},
		},
		{
			name:    "single speaker without model name",
			details: detailsResponse{},
			want:    []types.VoiceStyle{{ID: 0, Name: "default"}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != detailsEndpoint {
					http.NotFound(w, r)
					return
				}
				_ = json.NewEncoder(w).Encode(tc.details)
			}))
			defer srv.Close()

			got, err := mustNew(t, srv.URL).Styles(context.Background())
			if err != nil {
				t.Fatalf("Styles: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("Styles = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("Styles[%d] = %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestStyles_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := mustNew(t, srv.URL).Styles(context.Background())
	if !errors.Is(err, errdefs.ErrSynthesis) {
		t.Fatalf("Styles error = %v, want ErrSynthesis", err)
	}
}

func TestSynthesize(t *testing.T) {
	clip := wav.Encode(make([]byte, 640), 22050, 1)
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != apiTTSEndpoint {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		gotQuery = map[string]string{
			"text":        q.Get("text"),
			"speaker_id":  q.Get("speaker_id"),
			"language_id": q.Get("language_id"),
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(clip)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithLanguage("ja"))
	got, err := p.Synthesize(context.Background(), "こんにちは", types.VoiceStyle{ID: 1, Name: "p226"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(got) != len(clip) {
		t.Errorf("clip length = %d, want %d", len(got), len(clip))
	}
	want := map[string]string{"text": "こんにちは", "speaker_id": "p226", "language_id": "ja"}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestSynthesize_DefaultStyleOmitsSpeaker(t *testing.T) {
	var hasSpeaker bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasSpeaker = r.URL.Query().Has("speaker_id")
		_, _ = w.Write(wav.Encode(make([]byte, 64), 22050, 1))
	}))
	defer srv.Close()

	if _, err := mustNew(t, srv.URL).Synthesize(context.Background(), "hi", types.VoiceStyle{Name: "default"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if hasSpeaker {
		t.Error("speaker_id sent for the default style")
	}
}

func TestSynthesize_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "bad", http.StatusBadRequest)
			},
		},
		{
			name: "not wav",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>oops</html>"))
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, err := mustNew(t, srv.URL).Synthesize(context.Background(), "hi", types.VoiceStyle{Name: "p225"})
			if !errors.Is(err, errdefs.ErrSynthesis) {
				t.Fatalf("Synthesize error = %v, want ErrSynthesis", err)
			}
		})
	}
}
