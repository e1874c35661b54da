// Package stream abstracts the transport that delivers raw alert records.
// The live broker consumer lives outside this repository; anything that can
// hand over one decoded record per poll satisfies Consumer.
package stream

import (
	"context"
	"errors"
	"time"
)

// ErrEndOfStream marks a finite source that has delivered everything it had.
// Live consumers never return it.
var ErrEndOfStream = errors.New("stream: end of stream")

// Consumer delivers one decoded alert record per poll.
type Consumer interface {
	// Poll blocks for at most timeout waiting for the next alert. A timeout
	// is not an error: it returns an empty topic and a nil record, and the
	// caller simply polls again.
	Poll(ctx context.Context, timeout time.Duration) (topic string, record map[string]any, err error)

	// Close releases the underlying transport.
	Close() error
}
