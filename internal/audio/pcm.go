package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-audio/wav"
)

const (
	// DefaultSampleRate is the rate assumed for headerless payloads.
	DefaultSampleRate = 24000

	// DefaultChannels is the channel count assumed for headerless payloads.
	DefaultChannels = 1

	bytesPerSample = 2
)

// ErrDecode is matched by every error returned from Decode.
var ErrDecode = errors.New("audio payload could not be decoded")

// DecodeError describes why a payload could not be turned into PCM.
type DecodeError struct {
	Format string // "wav" or "pcm"
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload: %v", e.Format, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports ErrDecode so callers can match any decode failure.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// PCM is decoded signed 16-bit little-endian interleaved audio.
type PCM struct {
	Data       []byte
	SampleRate int
	Channels   int
}

func (p *PCM) frameSize() int {
	return p.Channels * bytesPerSample
}

// Frames returns the number of complete frames in the buffer.
func (p *PCM) Frames() int {
	if p.frameSize() == 0 {
		return 0
	}
	return len(p.Data) / p.frameSize()
}

// Duration returns the playing time of the buffer in seconds.
func (p *PCM) Duration() float64 {
	if p.SampleRate <= 0 {
		return 0
	}
	return float64(p.Frames()) / float64(p.SampleRate)
}

// ByteOffset converts a time in seconds into a frame-aligned byte offset,
// clamped to the buffer.
func (p *PCM) ByteOffset(t float64) int {
	if t <= 0 || p.SampleRate <= 0 {
		return 0
	}
	frame := int(math.Round(t * float64(p.SampleRate)))
	if frame > p.Frames() {
		frame = p.Frames()
	}
	return frame * p.frameSize()
}

// Decode turns a payload into PCM. WAV payloads are read through their
// header; anything else is treated as raw PCM16LE mono at rawSampleRate.
func Decode(payload []byte, rawSampleRate int) (*PCM, error) {
	if len(payload) == 0 {
		return nil, &DecodeError{Format: "pcm", Err: errors.New("empty payload")}
	}

	if bytes.HasPrefix(payload, []byte("RIFF")) {
		return decodeWAV(payload)
	}

	if rawSampleRate <= 0 {
		rawSampleRate = DefaultSampleRate
	}
	if len(payload)%(DefaultChannels*bytesPerSample) != 0 {
		return nil, &DecodeError{Format: "pcm", Err: fmt.Errorf("odd payload length %d", len(payload))}
	}

	data := make([]byte, len(payload))
	copy(data, payload)

	return &PCM{Data: data, SampleRate: rawSampleRate, Channels: DefaultChannels}, nil
}

func decodeWAV(payload []byte) (*PCM, error) {
	d := wav.NewDecoder(bytes.NewReader(payload))
	if !d.IsValidFile() {
		return nil, &DecodeError{Format: "wav", Err: errors.New("invalid header")}
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, &DecodeError{Format: "wav", Err: err}
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, &DecodeError{Format: "wav", Err: errors.New("no samples")}
	}
	if d.NumChans == 0 || d.SampleRate == 0 {
		return nil, &DecodeError{Format: "wav", Err: errors.New("missing format chunk")}
	}

	depth := int(d.BitDepth)
	data := make([]byte, len(buf.Data)*bytesPerSample)
	for i, v := range buf.Data {
		s, err := toInt16(v, depth)
		if err != nil {
			return nil, &DecodeError{Format: "wav", Err: err}
		}
		binary.LittleEndian.PutUint16(data[i*bytesPerSample:], uint16(s))
	}

	return &PCM{Data: data, SampleRate: int(d.SampleRate), Channels: int(d.NumChans)}, nil
}

func toInt16(v, depth int) (int16, error) {
	switch depth {
	case 8:
		return int16((v - 128) << 8), nil
	case 16:
		return int16(v), nil
	case 24:
		return int16(v >> 8), nil
	case 32:
		return int16(v >> 16), nil
	default:
		return 0, fmt.Errorf("unsupported bit depth %d", depth)
	}
}
