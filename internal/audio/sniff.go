package audio

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxUploadSize is the largest clip the analysis endpoint accepts.
const MaxUploadSize = 50 << 20

// HeaderSniffSize is how many leading bytes are read for content detection.
const HeaderSniffSize = 3072

var allowedExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".webm": true, ".ogg": true,
	".aac": true, ".m4a": true, ".mp4": true,
}

var allowedMimeTypes = map[string]bool{
	"audio/mpeg": true, "audio/mp3": true,
	"audio/wav": true, "audio/wave": true, "audio/x-wav": true,
	"audio/webm": true, "audio/ogg": true, "audio/aac": true,
	"audio/m4a": true, "audio/x-m4a": true, "audio/mp4": true,
}

// detectedContainers are the sniffed types an upload may have. Detection
// walks up the mimetype tree, so e.g. audio/x-m4a matches through video/mp4.
var detectedContainers = []string{
	"audio/mpeg", "audio/wav", "audio/webm", "audio/ogg", "application/ogg",
	"audio/aac", "audio/x-m4a", "audio/mp4", "video/mp4",
}

// ErrInvalidUpload marks client mistakes in an uploaded clip.
var ErrInvalidUpload = errors.New("invalid audio upload")

// Sniff detects the container from its leading bytes and returns its MIME
// type, or "" when it is not an accepted audio container.
func Sniff(header []byte) string {
	detected := mimetype.Detect(header)
	for m := detected; m != nil; m = m.Parent() {
		for _, want := range detectedContainers {
			if m.Is(want) {
				return detected.String()
			}
		}
	}
	return ""
}

// Upload is the metadata of a clip about to be analysed.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
}

// ValidateUpload checks filename, extension, MIME type, size and magic bytes.
// The reader is only used to sniff the header; the caller rewinds it.
func ValidateUpload(u Upload, header io.Reader) error {
	if u.Filename == "" {
		return fmt.Errorf("%w: missing audio filename", ErrInvalidUpload)
	}

	ext := strings.ToLower(filepath.Ext(u.Filename))
	if !allowedExtensions[ext] {
		return fmt.Errorf("%w: unsupported file format: %s. Allowed formats: %s",
			ErrInvalidUpload, ext, strings.Join(AllowedExtensions(), ", "))
	}

	contentType := strings.TrimSpace(strings.SplitN(u.ContentType, ";", 2)[0])
	if !allowedMimeTypes[contentType] {
		return fmt.Errorf("%w: unsupported MIME type: %s", ErrInvalidUpload, u.ContentType)
	}

	if u.Size > MaxUploadSize {
		return fmt.Errorf("%w: file too large: %.2fMB. Maximum size: %dMB",
			ErrInvalidUpload, float64(u.Size)/(1<<20), MaxUploadSize>>20)
	}
	if u.Size == 0 {
		return fmt.Errorf("%w: file is empty", ErrInvalidUpload)
	}

	buf := make([]byte, HeaderSniffSize)
	n, err := io.ReadFull(header, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading audio header: %w", err)
	}
	if Sniff(buf[:n]) == "" {
		return fmt.Errorf("%w: invalid audio file format", ErrInvalidUpload)
	}
	return nil
}

// AllowedExtensions lists accepted extensions in sorted order.
func AllowedExtensions() []string {
	out := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
