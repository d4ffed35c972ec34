package gql

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Error is one entry of a GraphQL "errors" array
type Error struct {
	Message    string                 `json:"message"`
	Path       []interface{}          `json:"path,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// Result is the decoded outcome of one GraphQL call.
// It is exactly one of *Success, *ResponseError or *TransportError.
type Result interface {
	result()
}

// Success carries the raw "data" object of an error-free response
type Success struct {
	Status int
	Data   json.RawMessage
}

// ResponseError is a response whose body carried a GraphQL "errors" array
type ResponseError struct {
	Status int
	Errors []Error
}

// TransportError covers network failures, timeouts, non-2xx statuses without
// a GraphQL body and undecodable responses
type TransportError struct {
	Status int
	Err    error
}

func (*Success) result()        {}
func (*ResponseError) result()  {}
func (*TransportError) result() {}

func (e *ResponseError) Error() string {
	return "graphql: " + e.Message()
}

// Message joins the upstream error messages
func (e *ResponseError) Message() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		if err.Message != "" {
			msgs = append(msgs, err.Message)
		}
	}
	if len(msgs) == 0 {
		return "unknown error"
	}
	return strings.Join(msgs, "; ")
}

// Contains reports whether any upstream message contains substr, case-insensitively
func (e *ResponseError) Contains(substr string) bool {
	substr = strings.ToLower(substr)
	for _, err := range e.Errors {
		if strings.Contains(strings.ToLower(err.Message), substr) {
			return true
		}
	}
	return false
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("graphql transport: status %d: %v", e.Status, e.Err)
	case e.Err != nil:
		return "graphql transport: " + e.Err.Error()
	default:
		return fmt.Sprintf("graphql transport: unexpected status %d %s", e.Status, http.StatusText(e.Status))
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Decode unmarshals the data of a successful result into out.
// Failed results are returned as their error type.
func Decode(r Result, out interface{}) error {
	switch res := r.(type) {
	case *Success:
		if len(res.Data) == 0 || string(res.Data) == "null" {
			return &TransportError{Status: res.Status, Err: fmt.Errorf("response has no data")}
		}
		if err := json.Unmarshal(res.Data, out); err != nil {
			return &TransportError{Status: res.Status, Err: fmt.Errorf("decode data: %w", err)}
		}
		return nil
	case *ResponseError:
		return res
	case *TransportError:
		return res
	default:
		return &TransportError{Err: fmt.Errorf("unknown result type %T", r)}
	}
}
