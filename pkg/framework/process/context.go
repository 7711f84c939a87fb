// Package process provides the per-block audio processing context.
package process

// Context provides a clean API for audio processing with zero allocations.
// Input and Output are planar; only the first NumSamples() samples of each
// channel belong to the current block.
type Context struct {
	Input      [][]float32
	Output     [][]float32
	SampleRate float64

	numSamples   int
	maxBlockSize int
}

// NewContext creates a process context for blocks of up to maxBlockSize
// samples.
func NewContext(maxBlockSize int) *Context {
	return &Context{maxBlockSize: maxBlockSize}
}

// SetBlock points the context at a new block. numSamples is clamped to the
// shortest channel and to the maximum block size.
func (c *Context) SetBlock(input, output [][]float32, numSamples int) {
	c.Input = input
	c.Output = output
	n := min(max(numSamples, 0), c.maxBlockSize)
	for _, ch := range input {
		n = min(n, len(ch))
	}
	for _, ch := range output {
		n = min(n, len(ch))
	}
	c.numSamples = n
}

// NumSamples returns the number of samples to process
func (c *Context) NumSamples() int {
	return c.numSamples
}

// NumInputChannels returns the number of input channels
func (c *Context) NumInputChannels() int {
	return len(c.Input)
}

// NumOutputChannels returns the number of output channels
func (c *Context) NumOutputChannels() int {
	return len(c.Output)
}

// PassThrough copies input to output (for bypass). Output channels without
// a matching input are cleared.
func (c *Context) PassThrough() {
	n := c.numSamples
	for ch, out := range c.Output {
		if ch < len(c.Input) {
			copy(out[:n], c.Input[ch][:n])
		} else {
			clear(out[:n])
		}
	}
}

// ClearExtraOutputs zeros output channels from index from onwards
func (c *Context) ClearExtraOutputs(from int) {
	for ch := max(from, 0); ch < len(c.Output); ch++ {
		clear(c.Output[ch][:c.numSamples])
	}
}
