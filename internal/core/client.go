package core

import "context"

// Sender is the write side of one transport session.
// Implementations must allow Send and Close to be called from multiple goroutines.
type Sender interface {
	// Send writes one text frame. It must honor ctx cancellation.
	Send(ctx context.Context, frame []byte) error
	// Close terminates the transport session.
	Close(reason string) error
}

// Client is one live connection as seen by the core layer.
type Client struct {
	ID     string
	UserID string
	sender Sender
}

// NewClient constructs a client bound to a transport sender.
func NewClient(id, userID string, sender Sender) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		sender: sender,
	}
}

// Send writes a frame to this client's transport.
func (c *Client) Send(ctx context.Context, frame []byte) error {
	return c.sender.Send(ctx, frame)
}

// Close terminates this client's transport.
func (c *Client) Close(reason string) error {
	return c.sender.Close(reason)
}
