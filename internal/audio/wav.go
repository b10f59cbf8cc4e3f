package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

// PCMFormat describes raw little-endian signed PCM.
type PCMFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int // only 16 is supported
}

func (f PCMFormat) validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels < 1 || f.Channels > 2 {
		return fmt.Errorf("unsupported channel count: %d (only mono/stereo supported)", f.Channels)
	}
	if f.BitDepth != 16 {
		return fmt.Errorf("unsupported bit depth: %d (only 16-bit supported)", f.BitDepth)
	}
	return nil
}

// EncodeWAV wraps raw s16le PCM into a PCM WAV container.
func EncodeWAV(pcm []byte, f PCMFormat) ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	frameSize := f.Channels * 2
	if len(pcm)%frameSize != 0 {
		// A partial trailing frame is dropped.
		pcm = pcm[:len(pcm)-len(pcm)%frameSize]
	}
	if len(pcm) == 0 {
		return nil, errors.New("no PCM samples to encode")
	}

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}

	ws := &writerseeker.WriterSeeker{}
	enc := wav.NewEncoder(ws, f.SampleRate, f.BitDepth, f.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           samples,
		SourceBitDepth: f.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encoding WAV samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalizing WAV header: %w", err)
	}
	out, err := io.ReadAll(ws.Reader())
	if err != nil {
		return nil, fmt.Errorf("reading encoded WAV: %w", err)
	}
	return out, nil
}

// WAVInfo is the header summary of a WAV file.
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// InspectWAV reads the header of an in-memory WAV file. The duration is
// derived from the data chunk.
func InspectWAV(data []byte) (*WAVInfo, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid WAV file")
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("locating WAV data chunk: %w", err)
	}
	bytesPerSecond := int64(dec.SampleRate) * int64(dec.NumChans) * int64(dec.BitDepth) / 8
	if bytesPerSecond <= 0 {
		return nil, fmt.Errorf("invalid WAV format: %d Hz, %d ch, %d bit", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	return &WAVInfo{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Duration:   time.Duration(dec.PCMLen()) * time.Second / time.Duration(bytesPerSecond),
	}, nil
}
