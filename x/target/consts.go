package target

const (
	// DefaultMaxCompletedHistory bounds the completed list; older ids fall below the watermark.
	DefaultMaxCompletedHistory = 1000
	// DefaultSentinel fills invalid points.
	DefaultSentinel = 0.0
)
