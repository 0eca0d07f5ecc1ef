package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Convert returns clip in the target format. If the clip already matches, it
// is returned unchanged. Resampling happens before channel conversion so that
// a stereo source bound for mono output is only resampled once.
func Convert(clip Clip, to Format) (Clip, error) {
	if len(clip.PCM)%2 != 0 {
		return Clip{}, fmt.Errorf("audio: odd byte count %d in 16-bit PCM", len(clip.PCM))
	}
	if clip.Format == to {
		return clip, nil
	}
	if to.Channels < 1 || to.Channels > 2 || clip.Format.Channels < 1 || clip.Format.Channels > 2 {
		return Clip{}, fmt.Errorf("audio: unsupported channel conversion %s -> %s",
			formatString(clip.Format), formatString(to))
	}

	pcm := clip.PCM
	if clip.Format.SampleRate != to.SampleRate {
		if clip.Format.Channels == 1 {
			pcm = ResampleMono16(pcm, clip.Format.SampleRate, to.SampleRate)
		} else {
			pcm = ResampleStereo16(pcm, clip.Format.SampleRate, to.SampleRate)
		}
	}
	switch {
	case clip.Format.Channels == 1 && to.Channels == 2:
		pcm = MonoToStereo(pcm)
	case clip.Format.Channels == 2 && to.Channels == 1:
		pcm = StereoToMono(pcm)
	}
	return Clip{PCM: pcm, Format: to}, nil
}

// RMS returns the root-mean-square level of 16-bit mono PCM normalised to
// [0, 1]. Empty input yields 0.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(sample(pcm, i)) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
func MonoToStereo(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n*4)
	for i := range n {
		copy(out[i*4:i*4+2], pcm[i*2:i*2+2])
		copy(out[i*4+2:i*4+4], pcm[i*2:i*2+2])
	}
	return out
}

// StereoToMono averages L+R per stereo frame to produce mono output.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		avg := (int32(sample(pcm, i*2)) + int32(sample(pcm, i*2+1))) / 2
		putSample(out, i, clamp16(avg))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. If the rates match or are not positive the input is returned
// unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	return resample(pcm, 1, srcRate, dstRate)
}

// ResampleStereo16 resamples interleaved 16-bit stereo PCM from srcRate to
// dstRate using linear interpolation per channel.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	return resample(pcm, 2, srcRate, dstRate)
}

func resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	srcFrames := len(pcm) / (2 * channels)
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*2*channels)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= srcFrames {
			next = idx
		}
		for ch := range channels {
			s0 := float64(sample(pcm, idx*channels+ch))
			s1 := float64(sample(pcm, next*channels+ch))
			putSample(out, i*channels+ch, int16(s0*(1-frac)+s1*frac))
		}
	}
	return out
}

func sample(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*2:]))
}

func putSample(pcm []byte, i int, v int16) {
	binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
}

func clamp16(v int32) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// formatString returns a human-readable form such as "24000Hz mono".
func formatString(f Format) string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}
