package quickbooks

import (
	"fmt"
	"strings"
)

// APIError is a QuickBooks fault response.
type APIError struct {
	StatusCode int
	Type       string
	Errors     []FaultError
}

// FaultError is one entry of a QuickBooks fault.
type FaultError struct {
	Message string `json:"Message"`
	Detail  string `json:"Detail"`
	Code    string `json:"code"`
}

type faultEnvelope struct {
	Fault struct {
		Error []FaultError `json:"Error"`
		Type  string       `json:"type"`
	} `json:"Fault"`
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("quickbooks: request failed with status %d", e.StatusCode)
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		if fe.Detail != "" {
			msgs = append(msgs, fe.Message+": "+fe.Detail)
		} else {
			msgs = append(msgs, fe.Message)
		}
	}
	return fmt.Sprintf("quickbooks: %s (status %d)", strings.Join(msgs, "; "), e.StatusCode)
}

// Unauthorized reports whether the access token was rejected.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == 401
}
