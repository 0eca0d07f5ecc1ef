// Package wav encodes and decodes the canonical RIFF/WAVE container for
// 16-bit PCM. Speech services exchange audio in this container: segments are
// uploaded to recognition servers as WAV and VOICEVOX returns WAV bytes.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/MrWong99/kaiwa/pkg/audio"
)

const (
	headerSize    = 44
	bitsPerSample = 16
	formatPCM     = 1
	formatExt     = 0xFFFE
)

// ErrFormat is returned by Decode for inputs that are not 16-bit PCM WAV.
var ErrFormat = errors.New("wav: unsupported format")

// Encode wraps 16-bit little-endian PCM in a 44-byte canonical WAV header.
func Encode(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, headerSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], formatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// Decode parses a WAV container and returns its PCM payload. Chunks other
// than "fmt " and "data" (LIST, fact, ...) are skipped. Only 16-bit integer
// PCM is accepted.
func Decode(data []byte) (audio.Clip, error) {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return audio.Clip{}, fmt.Errorf("wav: missing RIFF/WAVE header")
	}

	var (
		f       audio.Format
		haveFmt bool
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		end := body + size
		if size < 0 || end > len(data) {
			// Some encoders write a bogus data size when streaming.
			if id == "data" && haveFmt {
				end = len(data)
			} else {
				return audio.Clip{}, fmt.Errorf("wav: chunk %q overruns input", id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return audio.Clip{}, fmt.Errorf("wav: short fmt chunk (%d bytes)", size)
			}
			tag := binary.LittleEndian.Uint16(data[body : body+2])
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if (tag != formatPCM && tag != formatExt) || bits != bitsPerSample {
				return audio.Clip{}, fmt.Errorf("%w: tag %#x, %d bits", ErrFormat, tag, bits)
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			if f.Channels == 0 || f.SampleRate == 0 {
				return audio.Clip{}, fmt.Errorf("%w: %d channels at %d Hz", ErrFormat, f.Channels, f.SampleRate)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return audio.Clip{}, fmt.Errorf("wav: data chunk before fmt chunk")
			}
			pcm := data[body:end]
			pcm = pcm[:len(pcm)/(2*f.Channels)*(2*f.Channels)]
			return audio.Clip{PCM: pcm, Format: f}, nil
		}

		off = end
		if size%2 == 1 {
			off++ // chunks are word aligned
		}
	}
	return audio.Clip{}, fmt.Errorf("wav: no data chunk")
}
