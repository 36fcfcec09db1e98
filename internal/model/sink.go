package model

import "context"

// Sink receives the encoded result of one processed scan document.
type Sink interface {
	Write(ctx context.Context, name string, raw []byte) error
}

type SinkCloser interface {
	Sink
	Close() error
}
