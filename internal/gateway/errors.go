package gateway

import "fmt"

// NetworkError is a non-success transport response from the research API.
// It is fatal to the call; only the waiter's poll loop tolerates it.
type NetworkError struct {
	StatusCode int
	Body       string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("gateway: HTTP %d: %s", e.StatusCode, e.Body)
}

// DecodeError is a malformed response body. Fatal to the call.
type DecodeError struct {
	Operation string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("gateway: decode %s response: %v", e.Operation, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
