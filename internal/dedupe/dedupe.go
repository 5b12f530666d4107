// Package dedupe tracks inbound message ids so replays are processed once.
package dedupe

import (
	"context"
)

// Deduper reports whether a key was already seen, marking it as seen if not.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
}
