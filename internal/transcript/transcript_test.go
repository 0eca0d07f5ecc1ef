package transcript

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	sttmock "github.com/MrWong99/kaiwa/pkg/provider/stt/mock"
	"github.com/MrWong99/kaiwa/pkg/types"
)

func TestCorrector_Correct(t *testing.T) {
	c := New(
		map[string]string{
			"しこくめたん": "四国めたん",
			"めたん":    "メタン",
			"ずんだ":    "ずんだもん",
		},
		[]string{"ご視聴ありがとうございました", "(音楽)"},
	)

	tests := []struct {
		name           string
		in             string
		want           string
		wantSuppressed bool
		wantCorr       int
	}{
		{name: "unchanged", in: "こんにちは", want: "こんにちは"},
		{name: "replacement", in: "しこくめたんさん、こんにちは", want: "四国めたんさん、こんにちは", wantCorr: 1},
		{name: "longest match wins", in: "しこくめたんとめたん", want: "四国めたんとメタン", wantCorr: 2},
		{name: "replaced text not rescanned", in: "ずんだ", want: "ずんだもん", wantCorr: 1},
		{name: "suppressed", in: "ご視聴ありがとうございました", wantSuppressed: true},
		{name: "suppressed with punctuation", in: " ご視聴ありがとうございました。", wantSuppressed: true},
		{name: "suppressed symbol phrase", in: "(音楽)", wantSuppressed: true},
		{name: "phrase inside sentence kept", in: "ご視聴ありがとうございましたと言った", want: "ご視聴ありがとうございましたと言った"},
		{name: "empty", in: "", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := c.Correct(tc.in)
			if res.Text != tc.want {
				t.Errorf("Text = %q, want %q", res.Text, tc.want)
			}
			if res.Suppressed != tc.wantSuppressed {
				t.Errorf("Suppressed = %v, want %v", res.Suppressed, tc.wantSuppressed)
			}
			if len(res.Corrections) != tc.wantCorr {
				t.Errorf("corrections = %+v, want %d", res.Corrections, tc.wantCorr)
			}
		})
	}
}

func TestCorrector_Disabled(t *testing.T) {
	for _, c := range []*Corrector{nil, New(nil, nil), New(map[string]string{"": "x"}, []string{"  "})} {
		if c.Enabled() {
			t.Errorf("Enabled() = true for %+v", c)
		}
		if res := c.Correct(" 。"); res.Text != " 。" || res.Suppressed {
			t.Errorf("Correct changed text: %+v", res)
		}
	}
}

func TestTranscriber(t *testing.T) {
	next := &sttmock.Transcriber{Texts: []string{"しこくめたん", "ご視聴ありがとうございました"}}
	tr := Wrap(next, New(map[string]string{"しこくめたん": "四国めたん"}, []string{"ご視聴ありがとうございました"}), slog.New(slog.DiscardHandler))

	got, err := tr.Transcribe(context.Background(), types.SpeechSegment{})
	if err != nil || got != "四国めたん" {
		t.Errorf("first = %q, %v", got, err)
	}
	got, err = tr.Transcribe(context.Background(), types.SpeechSegment{})
	if err != nil || got != "" {
		t.Errorf("second = %q, %v, want suppressed", got, err)
	}
}

func TestTranscriber_PassesErrors(t *testing.T) {
	boom := errors.New("boom")
	tr := Wrap(&sttmock.Transcriber{Err: boom}, New(nil, nil), nil)
	if _, err := tr.Transcribe(context.Background(), types.SpeechSegment{}); !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
}
