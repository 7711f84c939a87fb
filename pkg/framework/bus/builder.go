package bus

import (
	"errors"
	"fmt"
)

// Builder provides a fluent API for building bus configurations
type Builder struct {
	config *Configuration
	errors []error
}

// NewBuilder creates a new bus configuration builder
func NewBuilder() *Builder {
	return &Builder{
		config: &Configuration{
			audioBuses: []Info{},
		},
	}
}

// WithAudioInput adds an audio input bus
func (b *Builder) WithAudioInput(name string, channels int32) *Builder {
	return b.add(DirectionInput, name, channels)
}

// WithAudioOutput adds an audio output bus
func (b *Builder) WithAudioOutput(name string, channels int32) *Builder {
	return b.add(DirectionOutput, name, channels)
}

func (b *Builder) add(direction Direction, name string, channels int32) *Builder {
	if name == "" {
		b.errors = append(b.errors, fmt.Errorf("bus with %d channels has no name", channels))
	}
	b.config.audioBuses = append(b.config.audioBuses, Info{
		Direction:    direction,
		ChannelCount: channels,
		Name:         name,
		BusType:      TypeMain,
		IsActive:     true,
	})
	return b
}

// WithStereoInput adds a stereo input bus
func (b *Builder) WithStereoInput(name string) *Builder {
	return b.WithAudioInput(name, 2)
}

// WithStereoOutput adds a stereo output bus
func (b *Builder) WithStereoOutput(name string) *Builder {
	return b.WithAudioOutput(name, 2)
}

// WithMonoInput adds a mono input bus
func (b *Builder) WithMonoInput(name string) *Builder {
	return b.WithAudioInput(name, 1)
}

// WithMonoOutput adds a mono output bus
func (b *Builder) WithMonoOutput(name string) *Builder {
	return b.WithAudioOutput(name, 1)
}

// Validate checks if the configuration is valid
func (b *Builder) Validate() error {
	if len(b.errors) > 0 {
		return fmt.Errorf("builder errors: %w", errors.Join(b.errors...))
	}

	hasMainOutput := false
	for _, bus := range b.config.audioBuses {
		if bus.Direction == DirectionOutput && bus.BusType == TypeMain {
			hasMainOutput = true
			break
		}
	}
	if !hasMainOutput {
		return fmt.Errorf("configuration must have at least one main output bus")
	}

	for _, bus := range b.config.audioBuses {
		if bus.ChannelCount <= 0 {
			return fmt.Errorf("invalid channel count %d for bus %s", bus.ChannelCount, bus.Name)
		}
		if bus.ChannelCount > 32 {
			return fmt.Errorf("channel count %d exceeds maximum of 32 for bus %s", bus.ChannelCount, bus.Name)
		}
	}

	return nil
}

// Build returns the built configuration or an error
func (b *Builder) Build() (*Configuration, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b.config, nil
}

// MustBuild returns the built configuration or panics on error
func (b *Builder) MustBuild() *Configuration {
	config, err := b.Build()
	if err != nil {
		panic(err)
	}
	return config
}
