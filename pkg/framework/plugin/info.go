package plugin

import (
	"crypto/md5"
	"errors"
	"strings"
)

// Info contains plugin metadata
type Info struct {
	ID       string // Unique plugin identifier (e.g., "com.example.myplugin")
	Name     string // Display name
	Version  string // Semantic version (e.g., "1.0.0")
	Vendor   string // Company/developer name
	Category string // Plugin category (e.g., "Fx", "Instrument")
}

// UID derives a stable 16-byte class ID from the string ID
func (i Info) UID() [16]byte {
	return md5.Sum([]byte(i.ID))
}

// ValidateUID checks that the ID can produce a usable class ID
func (i Info) ValidateUID() error {
	if strings.TrimSpace(i.ID) == "" {
		return errors.New("plugin ID is empty")
	}
	if strings.ContainsAny(i.ID, " \t\n") {
		return errors.New("plugin ID contains whitespace")
	}
	return nil
}
