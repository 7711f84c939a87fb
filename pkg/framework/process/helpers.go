package process

// GetNumChannels returns the minimum of input and output channels
func (ctx *Context) GetNumChannels() int {
	return min(ctx.NumInputChannels(), ctx.NumOutputChannels())
}

// GetNumStereoChannels returns the number of channels capped at 2
func (ctx *Context) GetNumStereoChannels() int {
	return min(ctx.GetNumChannels(), 2)
}
