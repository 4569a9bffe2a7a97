package transport

import (
	"context"
	"encoding"
)

// Transport fans out notification envelopes and receives peer messages.
type Transport interface {
	// Publish sends the envelope to the shared broadcast topic
	Publish(ctx context.Context, payload encoding.BinaryMarshaler) (err error)

	// SendDirect delivers the payload to one peer's addressed channel
	SendDirect(ctx context.Context, peerAddress string, payload encoding.BinaryMarshaler) (err error)

	// Messages emits raw inbound messages from other peers
	Messages() <-chan []byte
}
