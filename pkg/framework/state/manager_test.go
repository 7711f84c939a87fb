package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/justyntemme/gainstage/pkg/framework/param"
)

func newTestRegistry() (*param.Registry, *param.Parameter, *param.Parameter) {
	r := param.NewRegistry()
	gain := param.GainParameter(1, "Trim", 40).Build()
	meter := param.LevelMeter(2, "Meter", 0).Build()
	if err := r.Add(gain, meter); err != nil {
		panic(err)
	}
	return r, gain, meter
}

func TestSaveLoadRoundTrip(t *testing.T) {
	src, gain, meter := newTestRegistry()
	gain.SetPlainValue(-6)
	meter.SetPlainValue(-20)

	var buf bytes.Buffer
	if err := NewManager(src).Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}

	dst, dstGain, dstMeter := newTestRegistry()
	if err := NewManager(dst).Load(&buf); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if dstGain.GetValue() != gain.GetValue() {
		t.Errorf("gain = %f, want %f", dstGain.GetPlainValue(), gain.GetPlainValue())
	}
	if dstMeter.GetPlainValue() != -100 {
		t.Errorf("meter should not be restored, got %f", dstMeter.GetPlainValue())
	}
}

// stateBlob builds a blob holding one parameter value followed by an
// extension block of ext bytes.
func stateBlob(id uint32, value float64, ext []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(magic)
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, int32(1))
	binary.Write(&buf, binary.LittleEndian, id)
	binary.Write(&buf, binary.LittleEndian, value)
	binary.Write(&buf, binary.LittleEndian, uint32(len(ext)))
	buf.Write(ext)
	return buf.Bytes()
}

func TestExtensionBlock(t *testing.T) {
	t.Run("Skipped", func(t *testing.T) {
		r, gain, _ := newTestRegistry()
		if err := NewManager(r).Load(bytes.NewReader(stateBlob(1, 0.25, []byte("pair=3")))); err != nil {
			t.Fatalf("Load: %v", err)
		}
		if gain.GetValue() != 0.25 {
			t.Errorf("gain = %f, want 0.25", gain.GetValue())
		}
	})

	t.Run("Truncated", func(t *testing.T) {
		r, _, _ := newTestRegistry()
		blob := stateBlob(1, 0.25, []byte("pair=3"))
		err := NewManager(r).Load(bytes.NewReader(blob[:len(blob)-2]))
		if !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("got %v, want ErrInvalidFormat", err)
		}
	})
}

func TestLoadErrors(t *testing.T) {
	r, _, _ := newTestRegistry()

	if err := NewManager(r).Load(bytes.NewReader([]byte("VST3GO...."))); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("bad header: got %v, want ErrInvalidFormat", err)
	}
	if err := NewManager(r).Load(bytes.NewReader([]byte("GS"))); err == nil {
		t.Error("truncated header should fail")
	}

	newer := append([]byte(magic), 9, 0, 0, 0)
	if err := NewManager(r).Load(bytes.NewReader(newer)); err == nil {
		t.Error("newer version should fail")
	}
}
