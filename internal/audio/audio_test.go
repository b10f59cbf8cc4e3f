package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"
)

func pcmTone(frames, channels int) []byte {
	buf := make([]byte, frames*channels*2)
	for i := 0; i < frames*channels; i++ {
		v := int16((i%200 - 100) * 300)
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}
	return buf
}

func TestEncodeWAVRoundTrip(t *testing.T) {
	f := PCMFormat{SampleRate: 16000, Channels: 1, BitDepth: 16}
	pcm := pcmTone(16000, 1) // one second

	data, err := EncodeWAV(pcm, f)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("RIFF")) || string(data[8:12]) != "WAVE" {
		t.Fatalf("Expected RIFF/WAVE header, got %q", data[:12])
	}
	if Sniff(data) != "audio/wav" {
		t.Errorf("Expected encoded data to sniff as wav")
	}

	info, err := InspectWAV(data)
	if err != nil {
		t.Fatalf("InspectWAV failed: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitDepth != 16 {
		t.Errorf("Unexpected format: %+v", info)
	}
	if d := info.Duration - time.Second; d < -time.Millisecond || d > time.Millisecond {
		t.Errorf("Expected 1s duration, got %v", info.Duration)
	}
}

func TestEncodeWAVDropsPartialFrame(t *testing.T) {
	f := PCMFormat{SampleRate: 8000, Channels: 2, BitDepth: 16}
	pcm := append(pcmTone(800, 2), 0x01, 0x02, 0x03)

	data, err := EncodeWAV(pcm, f)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	info, err := InspectWAV(data)
	if err != nil {
		t.Fatalf("InspectWAV failed: %v", err)
	}
	if d := info.Duration - 100*time.Millisecond; d < -time.Millisecond || d > time.Millisecond {
		t.Errorf("Expected 100ms, got %v", info.Duration)
	}
}

func TestEncodeWAVRejectsBadFormat(t *testing.T) {
	tests := []PCMFormat{
		{SampleRate: 0, Channels: 1, BitDepth: 16},
		{SampleRate: 8000, Channels: 3, BitDepth: 16},
		{SampleRate: 8000, Channels: 1, BitDepth: 24},
	}
	for _, f := range tests {
		if _, err := EncodeWAV(pcmTone(10, 1), f); err == nil {
			t.Errorf("Expected error for %+v", f)
		}
	}
	if _, err := EncodeWAV([]byte{1}, PCMFormat{SampleRate: 8000, Channels: 1, BitDepth: 16}); err == nil {
		t.Error("Expected error when no whole frame is present")
	}
}

func TestInspectWAVInvalid(t *testing.T) {
	if _, err := InspectWAV([]byte("INVALID HEADER DATA")); err == nil {
		t.Error("InspectWAV should fail on invalid data")
	}
}

func TestEncodeWAVPatchesChunkSizes(t *testing.T) {
	pcm := pcmTone(400, 1)
	data, err := EncodeWAV(pcm, PCMFormat{SampleRate: 8000, Channels: 1, BitDepth: 16})
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if len(data) != 44+len(pcm) {
		t.Fatalf("Expected %d bytes, got %d", 44+len(pcm), len(data))
	}
	if got := binary.LittleEndian.Uint32(data[4:8]); int(got) != len(data)-8 {
		t.Errorf("Expected RIFF size %d, got %d", len(data)-8, got)
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); int(got) != len(pcm) {
		t.Errorf("Expected data size %d, got %d", len(pcm), got)
	}
}

// Minimal container headers for content detection.
const (
	wavHeader  = "RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00"
	webmHeader = "\x1a\x45\xdf\xa3\x9f\x42\x86\x81\x01\x42\xf7\x81\x01\x42\xf2\x81\x04\x42\xf3\x81\x08\x42\x82\x84webm\x42\x87\x81\x04"
	m4aHeader  = "\x00\x00\x00\x20ftypM4A \x00\x00\x00\x00M4A mp42isom\x00\x00\x00\x00"
	mp4Header  = "\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2"
	aacHeader  = "\xff\xf1\x50\x80\x02\x1f\xfc\x21"
)

func TestSniff(t *testing.T) {
	tests := map[string]string{
		"mp3 id3":  "ID3\x04\x00\x00\x00\x00\x00\x00rest",
		"wav":      wavHeader,
		"webm":     webmHeader,
		"ogg":      "OggS\x00\x02\x00\x00\x00\x00",
		"m4a":      m4aHeader,
		"mp4":      mp4Header,
		"aac adts": aacHeader,
	}
	for name, header := range tests {
		if got := Sniff([]byte(header)); got == "" {
			t.Errorf("Expected %s to be accepted", name)
		}
	}

	for _, header := range []string{"fLaC\x00\x00\x00\x22", "plain text, not audio", "%PDF-1.7\n"} {
		if got := Sniff([]byte(header)); got != "" {
			t.Errorf("Sniff(%q) = %q, want rejection", header, got)
		}
	}
}

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name    string
		upload  Upload
		header  string
		wantErr bool
	}{
		{"valid wav", Upload{"clip.wav", "audio/wav", 1024}, wavHeader, false},
		{"mime with params", Upload{"clip.webm", "audio/webm;codecs=opus", 10}, webmHeader, false},
		{"m4a", Upload{"clip.m4a", "audio/x-m4a", 2048}, m4aHeader, false},
		{"m4a as audio/mp4", Upload{"clip.m4a", "audio/mp4", 2048}, m4aHeader, false},
		{"mp4 audio", Upload{"clip.mp4", "audio/mp4", 2048}, mp4Header, false},
		{"aac", Upload{"clip.aac", "audio/aac", 512}, aacHeader, false},
		{"missing name", Upload{"", "audio/wav", 10}, wavHeader, true},
		{"bad extension", Upload{"clip.flac", "audio/wav", 10}, wavHeader, true},
		{"bad mime", Upload{"clip.wav", "text/plain", 10}, wavHeader, true},
		{"too large", Upload{"clip.wav", "audio/wav", MaxUploadSize + 1}, wavHeader, true},
		{"empty", Upload{"clip.wav", "audio/wav", 0}, wavHeader, true},
		{"bad magic", Upload{"clip.wav", "audio/wav", 10}, "NOTAUDIO", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.upload, strings.NewReader(tt.header))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateUpload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidUpload) {
				t.Errorf("Expected ErrInvalidUpload, got %v", err)
			}
		})
	}
}

func TestParseProbe(t *testing.T) {
	out := []byte(`{"format":{"duration":"2.620000","format_name":"matroska,webm"},
		"streams":[{"codec_type":"video"},{"codec_type":"audio","sample_rate":"48000","channels":1}]}`)
	meta, err := parseProbe("/tmp/recording-1.webm", out)
	if err != nil {
		t.Fatalf("parseProbe failed: %v", err)
	}
	if meta.Filename != "recording-1.webm" || meta.SampleRate != 48000 || meta.Channels != 1 {
		t.Errorf("Unexpected metadata: %+v", meta)
	}
	if meta.DurationSec != 2.62 {
		t.Errorf("Expected 2.62s, got %v", meta.DurationSec)
	}

	if _, err := parseProbe("x", []byte(`{"streams":[{"codec_type":"video"}]}`)); err == nil {
		t.Error("Expected error without an audio stream")
	}
}
