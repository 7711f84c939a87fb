package plugin

import (
	"io"

	"github.com/justyntemme/gainstage/pkg/framework/bus"
	"github.com/justyntemme/gainstage/pkg/framework/param"
	"github.com/justyntemme/gainstage/pkg/framework/process"
)

// Processor is the interface a host drives. ProcessAudio runs on the audio
// thread and must not allocate, lock or block.
type Processor interface {
	Initialize(sampleRate float64, maxBlockSize int32) error
	ProcessAudio(ctx *process.Context)
	GetParameters() *param.Registry
	GetBuses() *bus.Configuration
	SetActive(active bool) error
	GetLatencySamples() int32
	GetTailSamples() int32
}

// Stateful is implemented by processors that persist state beyond what the
// host stores per parameter.
type Stateful interface {
	SaveState(w io.Writer) error
	LoadState(r io.Reader) error
}

// Plugin describes a plugin and creates processor instances
type Plugin interface {
	GetInfo() Info
	CreateProcessor() Processor
}
