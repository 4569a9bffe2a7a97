package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotPinned is reported by Unpin when the backend doesn't know the
// address. Callers treat it as benign when unpinning is a cleanup action.
var ErrNotPinned = errors.New("address is not pinned")

// SizeExceededError means the content is bigger than what the agreement
// pays for. Retrying can't fix that, the job runner gives up immediately.
type SizeExceededError struct {
	Actual   uint64
	Expected uint64
}

func (self *SizeExceededError) Error() string {
	return fmt.Sprintf("content size %d exceeds the agreed maximum %d", self.Actual, self.Expected)
}

func (self *SizeExceededError) NonRetryable() bool {
	return true
}

// Provider is the narrow interface the engine needs from the content
// addressed storage backend. Timeouts are passed through the context.
type Provider interface {
	// FetchMetaSize returns the cumulative size reported by the object
	// metadata. It may undercount, FetchActualSize is authoritative.
	FetchMetaSize(ctx context.Context, address string) (size uint64, err error)

	// FetchActualSize measures the size of the content as retrieved
	FetchActualSize(ctx context.Context, address string) (size uint64, err error)

	Pin(ctx context.Context, address string) (err error)

	// Unpin reports ErrNotPinned when the address wasn't pinned
	Unpin(ctx context.Context, address string) (err error)

	// Best effort direct connections to content owners
	Connect(ctx context.Context, addresses []string) (err error)
	Disconnect(ctx context.Context, addresses []string) (err error)
}
