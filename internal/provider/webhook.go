package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultWebhookTimeout = 10 * time.Second

// Response headers checked, in order, for a provider-side message reference.
var messageIDHeaders = []string{"X-Message-ID", "X-Message-Id", "X-Request-ID", "X-Request-Id"}

type webhookRequest struct {
	RecipientName  string `json:"recipientName"`
	RecipientPhone string `json:"recipientPhone"`
	MessageText    string `json:"messageText"`
}

// WebhookProvider delivers one message per POST to a delivery webhook. Retry
// policy lives with the caller; the client itself never retries.
type WebhookProvider struct {
	client   *resty.Client
	endpoint string
}

func NewWebhookProvider(endpoint string) (*WebhookProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewWebhookProviderWithClient(endpoint, client)
}

func NewWebhookProviderWithClient(endpoint string, client *resty.Client) (*WebhookProvider, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	return &WebhookProvider{client: client, endpoint: endpoint}, nil
}

func (p *WebhookProvider) Send(ctx context.Context, delivery Delivery) (*ProviderResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if err := validateDelivery(delivery); err != nil {
		return nil, err
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(webhookRequest{
			RecipientName:  delivery.RecipientName,
			RecipientPhone: delivery.RecipientPhone,
			MessageText:    delivery.MessageText,
		}).
		Post(p.endpoint)
	if err != nil {
		return nil, &ProviderError{
			Message:   "delivery request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	return decodeResponse(response)
}

func validateDelivery(delivery Delivery) error {
	if strings.TrimSpace(delivery.RecipientPhone) == "" {
		return fmt.Errorf("recipient phone is required")
	}
	if strings.TrimSpace(delivery.MessageText) == "" {
		return fmt.Errorf("message text is required")
	}
	return nil
}

func decodeResponse(response *resty.Response) (*ProviderResponse, error) {
	if response == nil {
		return nil, &ProviderError{Message: "provider returned empty response", Transient: true}
	}

	code := response.StatusCode()
	body := strings.TrimSpace(response.String())

	if code < http.StatusOK || code >= http.StatusMultipleChoices {
		message := fmt.Sprintf("provider returned status %d", code)
		if body != "" {
			message = fmt.Sprintf("%s: %s", message, body)
		}
		return nil, &ProviderError{
			StatusCode: code,
			Message:    message,
			Transient:  transientStatus(code),
		}
	}

	result := &ProviderResponse{StatusCode: code, Body: body}
	for _, key := range messageIDHeaders {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			result.MessageID = value
			break
		}
	}

	return result, nil
}
