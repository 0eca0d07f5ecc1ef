package whisper

import (
	"encoding/binary"
	"testing"
)

func TestPcmToFloat32(t *testing.T) {
	tests := []struct {
		name string
		in   []int16
		odd  bool
		want []float32
	}{
		{name: "empty"},
		{name: "half scale", in: []int16{16384, -16384}, want: []float32{0.5, -0.5}},
		{name: "extremes", in: []int16{32767, -32768, 0}, want: []float32{32767.0 / 32768.0, -1, 0}},
		{name: "trailing byte ignored", in: []int16{8192}, odd: true, want: []float32{0.25}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm := make([]byte, len(tt.in)*2)
			for i, v := range tt.in {
				binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
			}
			if tt.odd {
				pcm = append(pcm, 0xff)
			}
			got := pcmToFloat32(pcm)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d samples, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sample %d: got %f, want %f", i, got[i], tt.want[i])
				}
			}
		})
	}
}
