package audiofile

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func sineBuffer(sampleRate, numChannels, numFrames int, amplitude float64) *Buffer {
	b := NewBuffer(sampleRate, numChannels, numFrames)
	for ch := range b.Channels {
		for i := range b.Channels[ch] {
			b.Channels[ch][i] = float32(amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)+float64(ch)))
		}
	}
	return b
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		bitDepth int
		channels int
	}{
		{"16-bit mono", 16, 1},
		{"16-bit stereo", 16, 2},
		{"24-bit stereo", 24, 2},
		{"32-bit stereo", 32, 2},
	}

	dir := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := sineBuffer(44100, tt.channels, 2048, 0.8)
			src.BitDepth = tt.bitDepth

			path := filepath.Join(dir, tt.name+".wav")
			if err := WriteWAV(path, src); err != nil {
				t.Fatalf("WriteWAV: %v", err)
			}
			got, err := ReadWAV(path)
			if err != nil {
				t.Fatalf("ReadWAV: %v", err)
			}

			if got.SampleRate != 44100 || got.BitDepth != tt.bitDepth {
				t.Errorf("format = %d Hz %d-bit", got.SampleRate, got.BitDepth)
			}
			if got.NumChannels() != tt.channels || got.NumFrames() != 2048 {
				t.Fatalf("shape = %d x %d", got.NumChannels(), got.NumFrames())
			}
			tolerance := 1.5 / fullScale(tt.bitDepth)
			for ch := range src.Channels {
				for i := range src.Channels[ch] {
					if d := math.Abs(float64(got.Channels[ch][i] - src.Channels[ch][i])); d > tolerance {
						t.Fatalf("ch %d sample %d: got %f, want %f", ch, i, got.Channels[ch][i], src.Channels[ch][i])
					}
				}
			}
		})
	}
}

func TestEncodeClipsOutOfRange(t *testing.T) {
	src := NewBuffer(48000, 1, 4)
	src.BitDepth = 16
	copy(src.Channels[0], []float32{2, -2, 1, -1})

	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := WriteWAV(path, src); err != nil {
		t.Fatal(err)
	}
	got, err := ReadWAV(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{32767.0 / 32768, -1, 32767.0 / 32768, -1}
	for i, w := range want {
		if got.Channels[0][i] != w {
			t.Errorf("sample %d = %f, want %f", i, got.Channels[0][i], w)
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("definitely not a RIFF file, just text")))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestEncodeErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		buf  *Buffer
	}{
		{"bit depth", &Buffer{SampleRate: 48000, BitDepth: 12, Channels: [][]float32{{0}}}},
		{"no channels", &Buffer{SampleRate: 48000}},
		{"sample rate", &Buffer{Channels: [][]float32{{0}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := WriteWAV(filepath.Join(dir, tt.name+".wav"), tt.buf); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := ReadWAV(filepath.Join(t.TempDir(), "missing.wav"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not-exist", err)
	}
}

func TestBufferShape(t *testing.T) {
	b := &Buffer{SampleRate: 1000, Channels: [][]float32{make([]float32, 500), make([]float32, 300)}}
	if b.NumFrames() != 300 {
		t.Errorf("NumFrames() = %d, want shortest channel", b.NumFrames())
	}
	if b.Duration() != 0.3 {
		t.Errorf("Duration() = %f", b.Duration())
	}
	if (&Buffer{}).NumFrames() != 0 {
		t.Error("empty buffer should have no frames")
	}
}
