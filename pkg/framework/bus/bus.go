// Package bus provides audio bus configuration and layout checks.
package bus

// Direction represents the bus direction
type Direction int32

const (
	// DirectionInput represents input bus
	DirectionInput Direction = 0
	// DirectionOutput represents output bus
	DirectionOutput Direction = 1
)

// Type represents the bus type
type Type int32

const (
	// TypeMain represents main bus
	TypeMain Type = 0
	// TypeAux represents auxiliary bus
	TypeAux Type = 1
)

// Info contains bus configuration
type Info struct {
	Direction    Direction
	ChannelCount int32
	Name         string
	BusType      Type
	IsActive     bool
}

// Configuration manages audio buses
type Configuration struct {
	audioBuses []Info
}

// NewStereoConfiguration creates a standard stereo I/O configuration
func NewStereoConfiguration() *Configuration {
	return NewBuilder().WithStereoInput("Stereo In").WithStereoOutput("Stereo Out").MustBuild()
}

// NewMonoConfiguration creates a mono I/O configuration
func NewMonoConfiguration() *Configuration {
	return NewBuilder().WithMonoInput("Mono In").WithMonoOutput("Mono Out").MustBuild()
}

// GetBusCount returns the number of buses for a given direction
func (c *Configuration) GetBusCount(direction Direction) int32 {
	count := int32(0)
	for _, bus := range c.audioBuses {
		if bus.Direction == direction {
			count++
		}
	}
	return count
}

// GetBusInfo returns information about a specific bus
func (c *Configuration) GetBusInfo(direction Direction, index int32) *Info {
	busIndex := int32(0)
	for i := range c.audioBuses {
		if c.audioBuses[i].Direction == direction {
			if busIndex == index {
				return &c.audioBuses[i]
			}
			busIndex++
		}
	}
	return nil
}

// MainChannels returns the channel count of the first main bus in a
// direction, or 0 if there is none.
func (c *Configuration) MainChannels(direction Direction) int {
	for _, bus := range c.audioBuses {
		if bus.Direction == direction && bus.BusType == TypeMain {
			return int(bus.ChannelCount)
		}
	}
	return 0
}

// SupportsLayout reports whether a host layout with the given main input and
// output channel counts can run this configuration. Output must be mono or
// stereo and match the input.
func (c *Configuration) SupportsLayout(inputChannels, outputChannels int) bool {
	if outputChannels != 1 && outputChannels != 2 {
		return false
	}
	if inputChannels != outputChannels {
		return false
	}
	return outputChannels <= c.MainChannels(DirectionOutput)
}
