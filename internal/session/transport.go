package session

import "context"

// Conn is one open bidirectional connection to the assistant backend.
// Read blocks until a frame arrives, the context ends, or the connection
// drops. Write and Read may be called concurrently; Write calls are
// serialized by the Session.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Transport opens connections.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}
