package frame

import (
	"fmt"
	"math"
)

// Limits constrains the size of messages a Reader or Writer accepts
type Limits struct {
	// MaxMessage is the largest payload in bytes. Zero means no limit
	// beyond what can be held in memory.
	MaxMessage uint64
}

// DefaultLimits returns the default limits. The wire format imposes no
// upper bound, so neither do the defaults.
func DefaultLimits() Limits {
	return Limits{}
}

// NegotiateLimits returns the tighter of two limit sets
func NegotiateLimits(a, b Limits) Limits {
	switch {
	case a.MaxMessage == 0:
		return b
	case b.MaxMessage == 0:
		return a
	default:
		return Limits{MaxMessage: min(a.MaxMessage, b.MaxMessage)}
	}
}

func (l Limits) check(length uint64) error {
	if l.MaxMessage > 0 && length > l.MaxMessage {
		return fmt.Errorf("%w: %d bytes exceeds max_message limit %d", ErrMessageTooLarge, length, l.MaxMessage)
	}
	if length > math.MaxInt {
		return fmt.Errorf("%w: %d bytes exceeds addressable memory", ErrMessageTooLarge, length)
	}
	return nil
}
