package gql

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bilgisen/kafkaesque/internal/logger"
	"github.com/bilgisen/kafkaesque/internal/metrics"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Request is a GraphQL request body
type Request struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// Options configures a Client
type Options struct {
	Endpoint   string
	Token      string
	Timeout    time.Duration
	RetryCount int
	UserAgent  string
}

// Client posts GraphQL documents to a single endpoint
type Client struct {
	client   *resty.Client
	endpoint string
	log      zerolog.Logger
}

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []Error         `json:"errors"`
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "kafkaesque-blog/1.0"
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", opts.UserAgent)

	if opts.Token != "" {
		client.SetAuthToken(opts.Token)
	}

	return &Client{
		client:   client,
		endpoint: opts.Endpoint,
		log:      logger.Component("gql"),
	}
}

// Do executes the request and classifies the response. It never returns nil.
func (c *Client) Do(ctx context.Context, operation string, req Request) Result {
	start := time.Now()
	res := c.do(ctx, req)

	outcome := "success"
	switch r := res.(type) {
	case *ResponseError:
		outcome = "graphql_error"
		c.log.Warn().
			Str("operation", operation).
			Int("status", r.Status).
			Str("errors", r.Message()).
			Interface("variables", req.Variables).
			Msg("GraphQL errors in response")
	case *TransportError:
		outcome = "transport_error"
		c.log.Error().
			Err(r).
			Str("operation", operation).
			Int("status", r.Status).
			Msg("GraphQL request failed")
	}
	metrics.RecordCMSRequest(operation, outcome, time.Since(start))

	return res
}

func (c *Client) do(ctx context.Context, req Request) Result {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		Post(c.endpoint)
	if err != nil {
		return &TransportError{Err: fmt.Errorf("post %s: %w", c.endpoint, err)}
	}

	status := resp.StatusCode()

	var env envelope
	decodeErr := json.Unmarshal(resp.Body(), &env)

	if decodeErr == nil && len(env.Errors) > 0 {
		return &ResponseError{Status: status, Errors: env.Errors}
	}
	if status < 200 || status > 299 {
		return &TransportError{Status: status}
	}
	if decodeErr != nil {
		return &TransportError{Status: status, Err: fmt.Errorf("decode response: %w", decodeErr)}
	}

	return &Success{Status: status, Data: env.Data}
}
