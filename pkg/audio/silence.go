package audio

import "time"

// AppendSilence returns pcm extended by d of digital silence in format f.
func AppendSilence(pcm []byte, f Format, d time.Duration) []byte {
	if d <= 0 || f.SampleRate <= 0 || f.Channels <= 0 {
		return pcm
	}
	frames := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	n := frames * f.Channels * 2
	out := make([]byte, len(pcm), len(pcm)+n)
	copy(out, pcm)
	return append(out, make([]byte, n)...)
}
