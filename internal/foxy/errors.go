package foxy

import (
	"errors"
	"fmt"
)

// ErrCartEmpty is returned when a payment link is requested for an empty cart.
var ErrCartEmpty = errors.New("foxy: cart is empty")

// ErrPaymentLink covers link-generation failures not otherwise classified.
var ErrPaymentLink = errors.New("foxy: payment link generation failed")

// FailedRequestError is returned when the provider responds with status >= 400
// or the transport fails. It carries the raw response for operator diagnostics.
type FailedRequestError struct {
	Status int
	Body   string
}

func (e *FailedRequestError) Error() string {
	return fmt.Sprintf("foxy: request failed: (%d) %s", e.Status, e.Body)
}

// NotFoundError marks a remote resource as absent. Callers treat it as
// "nothing to do" rather than a hard failure.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("foxy: %s not found", e.Resource)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
