package wav_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/kaiwa/pkg/audio/wav"
)

func TestEncode_Header(t *testing.T) {
	pcm := make([]byte, 320)
	data := wav.Encode(pcm, 16000, 1)

	if len(data) != 44+len(pcm) {
		t.Fatalf("length: got %d, want %d", len(data), 44+len(pcm))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE magic")
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != 16000 {
		t.Errorf("sample rate: got %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(data[28:32]); got != 32000 {
		t.Errorf("byte rate: got %d, want 32000", got)
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size: got %d, want %d", got, len(pcm))
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	clip, err := wav.Decode(wav.Encode(pcm, 24000, 2))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if clip.Format.SampleRate != 24000 || clip.Format.Channels != 2 {
		t.Errorf("format: got %+v", clip.Format)
	}
	if !bytes.Equal(clip.PCM, pcm) {
		t.Errorf("pcm: got %v, want %v", clip.PCM, pcm)
	}
}

func TestDecode_SkipsUnknownChunks(t *testing.T) {
	base := wav.Encode([]byte{9, 0, 8, 0}, 24000, 1)

	// Insert an odd-sized LIST chunk between fmt and data.
	list := []byte("LIST")
	list = binary.LittleEndian.AppendUint32(list, 3)
	list = append(list, 'a', 'b', 'c', 0)

	var buf bytes.Buffer
	buf.Write(base[:36])
	buf.Write(list)
	buf.Write(base[36:])

	clip, err := wav.Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(clip.PCM, []byte{9, 0, 8, 0}) {
		t.Errorf("pcm: got %v", clip.PCM)
	}
}

func TestDecode_Errors(t *testing.T) {
	float32WAV := wav.Encode(make([]byte, 8), 24000, 1)
	binary.LittleEndian.PutUint16(float32WAV[20:22], 3)
	binary.LittleEndian.PutUint16(float32WAV[34:36], 32)

	tests := []struct {
		name   string
		data   []byte
		format bool
	}{
		{"empty", nil, false},
		{"not riff", []byte("RIFX....WAVEfmt "), false},
		{"no data chunk", wav.Encode(nil, 16000, 1)[:36], false},
		{"float samples", float32WAV, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := wav.Decode(tc.data)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tc.format && !errors.Is(err, wav.ErrFormat) {
				t.Errorf("want ErrFormat, got %v", err)
			}
		})
	}
}
