package provider

import "context"

// Delivery is the payload of one outbound message.
type Delivery struct {
	RecipientName  string
	RecipientPhone string
	MessageText    string
}

// Provider is the outbound message delivery port. The engine treats it as
// opaque and retriable.
type Provider interface {
	Send(ctx context.Context, delivery Delivery) (*ProviderResponse, error)
}

// ProviderResponse stores provider call metadata for audit and logging.
type ProviderResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
