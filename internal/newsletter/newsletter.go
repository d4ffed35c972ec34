// Package newsletter subscribes readers to the publication's mailing list.
package newsletter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bilgisen/kafkaesque/internal/gql"
	"github.com/bilgisen/kafkaesque/internal/logger"
	"github.com/bilgisen/kafkaesque/internal/utils"
	"github.com/rs/zerolog"
)

// ErrNotConfigured means the access token or publication id is missing
var ErrNotConfigured = errors.New("newsletter: HASHNODE_ACCESS_TOKEN and HASHNODE_PUBLICATION_ID are required")

const subscribeMutation = `
mutation SubscribeToNewsletter($input: SubscribeToNewsletterInput!) {
  subscribeToNewsletter(input: $input) {
    status
  }
}`

// Doer executes GraphQL requests
type Doer interface {
	Do(ctx context.Context, operation string, req gql.Request) gql.Result
}

// Options configures a Subscriber
type Options struct {
	Token         string
	PublicationID string
}

// Outcome is the answer to show the reader
type Outcome struct {
	Status  int    `json:"-"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Subscriber forwards signups to the CMS
type Subscriber struct {
	gql           Doer
	token         string
	publicationID string
	log           zerolog.Logger
}

func NewSubscriber(doer Doer, opts Options) *Subscriber {
	return &Subscriber{
		gql:           doer,
		token:         strings.TrimSpace(opts.Token),
		publicationID: strings.TrimSpace(opts.PublicationID),
		log:           logger.Component("newsletter"),
	}
}

// SubscriberTag identifies an address in logs without recording it
func SubscriberTag(email string) string {
	return utils.Hash(strings.ToLower(strings.TrimSpace(email)))[:12]
}

// Subscribe asks the CMS to subscribe email. Upstream rejections are
// reported as an Outcome; only configuration and transport failures are errors.
func (s *Subscriber) Subscribe(ctx context.Context, email string) (Outcome, error) {
	if s.token == "" || s.publicationID == "" {
		return Outcome{}, ErrNotConfigured
	}

	s.log.Info().Str("subscriber", SubscriberTag(email)).Msg("Attempting newsletter subscription")

	res := s.gql.Do(ctx, "subscribe", gql.Request{
		Query: subscribeMutation,
		Variables: map[string]interface{}{
			"input": map[string]interface{}{
				"publicationId": s.publicationID,
				"email":         email,
			},
		},
	})

	switch r := res.(type) {
	case *gql.ResponseError:
		if r.Contains("already subscribed") {
			return accepted("You are already subscribed!"), nil
		}
		status := http.StatusBadRequest
		if r.Status == http.StatusUnauthorized {
			status = http.StatusUnauthorized
		}
		msg := "Failed to subscribe due to an API error."
		if len(r.Errors) > 0 && r.Errors[0].Message != "" {
			msg = r.Errors[0].Message
		}
		return rejected(status, msg), nil

	case *gql.TransportError:
		// A bare 4xx is the CMS refusing the request, not a broken transport
		if r.Status == http.StatusUnauthorized {
			return rejected(http.StatusUnauthorized, "Failed to subscribe due to an API error."), nil
		}
		if r.Status >= 400 && r.Status < 500 {
			return rejected(http.StatusBadRequest, "Failed to subscribe due to an API error."), nil
		}
		return Outcome{}, fmt.Errorf("subscribe: %w", r)
	}

	var data struct {
		SubscribeToNewsletter *struct {
			Status string `json:"status"`
		} `json:"subscribeToNewsletter"`
	}
	if err := gql.Decode(res, &data); err != nil {
		return Outcome{}, fmt.Errorf("subscribe: %w", err)
	}

	status := ""
	if data.SubscribeToNewsletter != nil {
		status = data.SubscribeToNewsletter.Status
	}
	s.log.Info().Str("subscriber", SubscriberTag(email)).Str("status", status).Msg("Subscription status")

	switch status {
	case "SUCCESS", "PENDING", "ALREADY_SUBSCRIBED":
		return accepted("Successfully subscribed! Check your email."), nil
	}
	if status == "" {
		status = "Unknown"
	}
	return rejected(http.StatusBadRequest, fmt.Sprintf("Subscription status: %s. Please try again.", status)), nil
}

func accepted(msg string) Outcome {
	return Outcome{Status: http.StatusOK, Success: true, Message: msg}
}

func rejected(status int, msg string) Outcome {
	return Outcome{Status: status, Success: false, Message: msg}
}
