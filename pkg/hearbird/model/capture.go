package model

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMimeType is used when neither the producer nor the file extension
// says what the audio is.
const DefaultMimeType = "audio/webm"

// AudioCapture is a finished audio clip ready for submission. It is never
// modified after construction.
type AudioCapture struct {
	data     []byte
	mimeType string
	filename string
}

// NewAudioCapture copies data into a new capture. An empty mimeType falls back
// to DefaultMimeType.
func NewAudioCapture(data []byte, mimeType, filename string) (*AudioCapture, error) {
	if len(data) == 0 {
		return nil, errors.New("audio capture is empty")
	}
	if strings.TrimSpace(filename) == "" {
		return nil, errors.New("audio capture needs a filename")
	}
	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return &AudioCapture{data: buf, mimeType: mimeType, filename: filename}, nil
}

// CaptureFromFile builds a capture from a user-selected file. The MIME type is
// derived from the extension.
func CaptureFromFile(path string) (*AudioCapture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading audio file: %w", err)
	}
	return NewAudioCapture(data, MimeTypeForExt(filepath.Ext(path)), filepath.Base(path))
}

// MimeTypeForExt returns the audio MIME type for a file extension.
func MimeTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".webm":
		return "audio/webm"
	case ".ogg":
		return "audio/ogg"
	case ".aac":
		return "audio/aac"
	case ".m4a":
		return "audio/x-m4a"
	case ".mp4":
		return "audio/mp4"
	}
	if t := mime.TypeByExtension(ext); strings.HasPrefix(t, "audio/") {
		return t
	}
	return DefaultMimeType
}

// Bytes returns a copy of the audio payload.
func (c *AudioCapture) Bytes() []byte {
	out := make([]byte, len(c.data))
	copy(out, c.data)
	return out
}

func (c *AudioCapture) MimeType() string { return c.mimeType }
func (c *AudioCapture) Filename() string { return c.filename }
func (c *AudioCapture) Size() int        { return len(c.data) }
