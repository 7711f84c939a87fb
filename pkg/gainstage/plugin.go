package gainstage

import (
	"github.com/justyntemme/gainstage/pkg/framework/plugin"
	"github.com/justyntemme/gainstage/pkg/shared"
)

// Info describes the level matcher.
var Info = plugin.Info{
	ID:       "com.justyntemme.gainstage.levelmatch",
	Name:     "Gain Stage Level Match",
	Version:  "1.0.0",
	Vendor:   "gainstage",
	Category: "Fx|Tools",
}

// Plugin creates processors that all share one registry.
type Plugin struct {
	registry *shared.Registry
	opts     []Option
}

// NewPlugin creates a plugin whose processors pair through registry.
func NewPlugin(registry *shared.Registry, opts ...Option) *Plugin {
	return &Plugin{registry: registry, opts: opts}
}

// GetInfo implements plugin.Plugin
func (p *Plugin) GetInfo() plugin.Info {
	return Info
}

// CreateProcessor implements plugin.Plugin
func (p *Plugin) CreateProcessor() plugin.Processor {
	return NewProcessor(p.registry, p.opts...)
}

// Registry returns the registry shared by this plugin's processors.
func (p *Plugin) Registry() *shared.Registry {
	return p.registry
}

var (
	_ plugin.Plugin    = (*Plugin)(nil)
	_ plugin.Processor = (*Processor)(nil)
	_ plugin.Stateful  = (*Processor)(nil)
)
