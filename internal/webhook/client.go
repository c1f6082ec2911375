package webhook

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notedrop/internal/domain"
	"github.com/kursadbilgin/notedrop/internal/idempotency"
)

const DefaultTimeout = 10 * time.Second

// Sender is the outbound delivery port.
type Sender interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

type Request struct {
	URL            string
	NoteID         string
	IdempotencyKey string
	Payload        domain.DeliveryPayload
}

type Response struct {
	StatusCode int
	Body       string
}

// Client posts note payloads with resty. It never retries on its own; retries
// are rounds of the delivery lifecycle.
type Client struct {
	client *resty.Client
}

func NewClient(timeout time.Duration) *Client {
	client := resty.New()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	c, _ := NewClientWithResty(client)
	return c
}

func NewClientWithResty(client *resty.Client) (*Client, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(DefaultTimeout)
	}
	client.SetRetryCount(0)

	return &Client{client: client}, nil
}

func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("webhook client is not initialized")
	}
	if strings.TrimSpace(req.URL) == "" {
		return nil, &DeliveryError{Message: "webhook url is empty"}
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(idempotency.HeaderNoteID, req.NoteID).
		SetHeader(idempotency.HeaderKey, req.IdempotencyKey).
		SetBody(req.Payload).
		Post(req.URL)
	if err != nil {
		return nil, &DeliveryError{Message: "request failed", Cause: err}
	}
	if response == nil {
		return nil, &DeliveryError{Message: "empty response"}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &Response{
			StatusCode: statusCode,
			Body:       strings.TrimSpace(response.String()),
		}, nil
	}

	return nil, &DeliveryError{StatusCode: statusCode}
}
