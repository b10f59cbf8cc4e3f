package recorder

import (
	"context"
	"io"
	"strings"
)

// Format describes what a Stream yields.
type Format struct {
	// PCM is true when the stream produces raw signed 16-bit little-endian
	// samples. Such data is wrapped into a WAV container on stop.
	PCM        bool
	SampleRate int
	Channels   int

	// MimeType names the container of non-PCM streams. Empty means
	// audio/webm.
	MimeType string
}

// Stream is an open microphone session. Read returns io.EOF once Stop has
// flushed the remaining data. Close releases the device and must unblock a
// pending Read.
type Stream interface {
	io.Reader
	Format() Format
	Stop() error
	Close() error
}

// Device opens microphone streams. Open blocks while the platform asks for
// permission.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// DeviceFunc adapts a function to the Device interface.
type DeviceFunc func(ctx context.Context) (Stream, error)

func (f DeviceFunc) Open(ctx context.Context) (Stream, error) { return f(ctx) }

func extForMime(mimeType string) string {
	base := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	switch strings.ToLower(base) {
	case "audio/wav", "audio/wave", "audio/x-wav":
		return "wav"
	case "audio/ogg":
		return "ogg"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	case "audio/aac":
		return "aac"
	default:
		return "webm"
	}
}
