// Package audiofile reads and writes WAV files as planar float32 audio for
// the offline renderer.
package audiofile

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrUnsupportedFormat is returned for files that are not integer PCM WAV
// at 16, 24 or 32 bits.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

const (
	wavFormatPCM    = 1
	DefaultBitDepth = 24
)

// Buffer is decoded audio, one slice per channel.
type Buffer struct {
	SampleRate int
	BitDepth   int
	Channels   [][]float32
}

// NewBuffer allocates a silent buffer.
func NewBuffer(sampleRate, numChannels, numFrames int) *Buffer {
	b := &Buffer{
		SampleRate: sampleRate,
		BitDepth:   DefaultBitDepth,
		Channels:   make([][]float32, numChannels),
	}
	for ch := range b.Channels {
		b.Channels[ch] = make([]float32, numFrames)
	}
	return b
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int {
	return len(b.Channels)
}

// NumFrames returns the length of the shortest channel.
func (b *Buffer) NumFrames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	n := len(b.Channels[0])
	for _, ch := range b.Channels[1:] {
		n = min(n, len(ch))
	}
	return n
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.NumFrames()) / float64(b.SampleRate)
}

// ReadWAV decodes the WAV file at path.
func ReadWAV(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	b, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return b, nil
}

// Decode reads a whole WAV stream.
func Decode(r io.ReadSeeker) (*Buffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a WAV file", ErrUnsupportedFormat)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: WAV format tag %d", ErrUnsupportedFormat, dec.WavAudioFormat)
	}
	bitDepth := int(dec.BitDepth)
	if !supportedBitDepth(bitDepth) {
		return nil, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, bitDepth)
	}
	numChannels := int(dec.NumChans)
	if numChannels < 1 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, numChannels)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}

	numFrames := len(pcm.Data) / numChannels
	b := NewBuffer(int(dec.SampleRate), numChannels, numFrames)
	b.BitDepth = bitDepth

	scale := 1 / fullScale(bitDepth)
	for i := 0; i < numFrames; i++ {
		frame := pcm.Data[i*numChannels : (i+1)*numChannels]
		for ch, s := range frame {
			b.Channels[ch][i] = float32(float64(s) * scale)
		}
	}
	return b, nil
}

// WriteWAV encodes b to path as integer PCM, creating or truncating the file.
func WriteWAV(path string, b *Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Encode(f, b); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// Encode writes b as a WAV stream. A zero BitDepth selects DefaultBitDepth.
// Samples outside [-1, 1] are clipped.
func Encode(w io.WriteSeeker, b *Buffer) error {
	bitDepth := b.BitDepth
	if bitDepth == 0 {
		bitDepth = DefaultBitDepth
	}
	if !supportedBitDepth(bitDepth) {
		return fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, bitDepth)
	}
	numChannels := b.NumChannels()
	if numChannels == 0 {
		return errors.New("no channels to write")
	}
	if b.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", b.SampleRate)
	}

	numFrames := b.NumFrames()
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: numChannels, SampleRate: b.SampleRate},
		Data:           make([]int, numFrames*numChannels),
		SourceBitDepth: bitDepth,
	}
	scale := fullScale(bitDepth)
	hi := scale - 1
	for i := 0; i < numFrames; i++ {
		for ch := 0; ch < numChannels; ch++ {
			v := math.Round(float64(b.Channels[ch][i]) * scale)
			buf.Data[i*numChannels+ch] = int(max(-scale, min(hi, v)))
		}
	}

	enc := wav.NewEncoder(w, b.SampleRate, bitDepth, numChannels, wavFormatPCM)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write samples: %w", err)
	}
	return enc.Close()
}

func supportedBitDepth(bits int) bool {
	return bits == 16 || bits == 24 || bits == 32
}

func fullScale(bits int) float64 {
	return float64(int64(1) << (bits - 1))
}
