package review

import (
	"errors"
	"fmt"

	"assohub-backend/internal/application/gate"
)

var (
	ErrOrganizationNotFound = errors.New("Organization not found")
	ErrDocumentNotFound     = errors.New("Document not found")
	ErrPaymentNotFound      = errors.New("Payment not found")
	ErrUnknownSlot          = errors.New("Unknown document slot")
	ErrPaymentNotPending    = errors.New("Payment is not pending review")
)

// ValidationError rejects a command synchronously before any event write.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// GateViolationError is the expected control-flow outcome of attempting
// payment approval while documents are outstanding. Blocking carries the
// offending slots for user feedback.
type GateViolationError struct {
	Blocking []gate.BlockingSlot
}

func (e *GateViolationError) Error() string {
	pending, rejected := 0, 0
	for _, b := range e.Blocking {
		if b.Status == "rejected" {
			rejected++
		} else {
			pending++
		}
	}
	return fmt.Sprintf("Cannot approve payment: %d document(s) pending, %d rejected", pending, rejected)
}
