package order

import (
	"errors"
	"fmt"

	"menu-orders/internal/models"
)

const fallbackStoreMessage = "failed to submit order items"

// ValidationError reports caller state that makes a submission impossible.
// It is raised before any I/O.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// RemoteWriteError reports that the store rejected a write. The store's
// message is kept as the error text.
type RemoteWriteError struct {
	StoreErr *models.StoreError
}

func (e *RemoteWriteError) Error() string {
	return e.StoreErr.Message
}

func (e *RemoteWriteError) Unwrap() error {
	return e.StoreErr
}

// newRemoteWriteError wraps any write failure, falling back to a generic
// message when the store did not provide one
func newRemoteWriteError(err error) *RemoteWriteError {
	var storeErr *models.StoreError
	if errors.As(err, &storeErr) {
		copied := *storeErr
		if copied.Message == "" {
			copied.Message = fallbackStoreMessage
		}
		return &RemoteWriteError{StoreErr: &copied}
	}
	return &RemoteWriteError{StoreErr: &models.StoreError{
		Message: fallbackStoreMessage,
		Detail:  err.Error(),
	}}
}

// CheckoutError reports a checkout that failed after its order row existed.
// OrderID is the order to retry against.
type CheckoutError struct {
	OrderID string
	Err     error
}

func (e *CheckoutError) Error() string {
	return e.Err.Error()
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}
