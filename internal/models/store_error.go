package models

import "fmt"

// StoreError is the structured error returned by the remote store.
// Message is always set; Code, Hint and Detail are optional.
type StoreError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Hint    string `json:"hint,omitempty"`
	Detail  string `json:"details,omitempty"`
}

func (e *StoreError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (code %s)", e.Message, e.Code)
	}
	return e.Message
}
