// Package state saves and restores parameter values as a binary blob.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/justyntemme/gainstage/pkg/framework/param"
)

const magic = "GSTAGE"

// ErrInvalidFormat is returned when a blob does not start with the state header.
var ErrInvalidFormat = errors.New("invalid state format")

// Manager handles plugin state saving and loading
type Manager struct {
	version  uint32
	registry *param.Registry
}

// NewManager creates a new state manager
func NewManager(registry *param.Registry) *Manager {
	return &Manager{
		version:  1,
		registry: registry,
	}
}

// Save writes the plugin state to a writer. Read-only parameters are skipped.
func (m *Manager) Save(w io.Writer) error {
	var params []*param.Parameter
	for _, p := range m.registry.All() {
		if p.Flags&param.IsReadOnly == 0 {
			params = append(params, p)
		}
	}

	if _, err := w.Write([]byte(magic)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, m.version); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(len(params))); err != nil {
		return err
	}

	for _, p := range params {
		if err := binary.Write(w, binary.LittleEndian, p.ID); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, p.GetValue()); err != nil {
			return err
		}
	}

	// Empty extension block.
	return binary.Write(w, binary.LittleEndian, uint32(0))
}

// Load reads the plugin state from a reader. Unknown parameter IDs are
// ignored so older hosts can load newer state.
func (m *Manager) Load(r io.Reader) error {
	header := make([]byte, len(magic))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if string(header) != magic {
		return ErrInvalidFormat
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version > m.version {
		return fmt.Errorf("state version %d is newer than supported version %d", version, m.version)
	}

	var paramCount int32
	if err := binary.Read(r, binary.LittleEndian, &paramCount); err != nil {
		return err
	}
	if paramCount < 0 {
		return fmt.Errorf("%w: negative parameter count", ErrInvalidFormat)
	}

	for i := int32(0); i < paramCount; i++ {
		var id uint32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return err
		}
		var value float64
		if err := binary.Read(r, binary.LittleEndian, &value); err != nil {
			return err
		}
		if p := m.registry.Get(id); p != nil && p.Flags&param.IsReadOnly == 0 {
			p.SetValue(value)
		}
	}

	// Extension blocks written by newer versions are skipped.
	var extLen uint32
	if err := binary.Read(r, binary.LittleEndian, &extLen); err != nil {
		return err
	}
	n, err := io.Copy(io.Discard, io.LimitReader(r, int64(extLen)))
	if err != nil {
		return err
	}
	if n < int64(extLen) {
		return fmt.Errorf("%w: truncated extension block", ErrInvalidFormat)
	}
	return nil
}
