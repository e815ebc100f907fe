package executor

// Options tune how frames are translated.
type Options struct {
	// MaxInlineDepth bounds nested inlined calls. Deeper calls bail out.
	MaxInlineDepth int
	// BreakGraph lets the top-level executor compile what it traced before
	// an untraceable call and resume the original code there.
	BreakGraph bool
	// Strict makes the cache return unsupported-construct errors instead of
	// running frames unmodified.
	Strict bool
}

// DefaultMaxInlineDepth is the inline depth used when none is configured.
const DefaultMaxInlineDepth = 64

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{MaxInlineDepth: DefaultMaxInlineDepth, BreakGraph: true}
}

func (o Options) maxInlineDepth() int {
	if o.MaxInlineDepth <= 0 {
		return DefaultMaxInlineDepth
	}
	return o.MaxInlineDepth
}
