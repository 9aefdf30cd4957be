package service

import (
	"errors"

	"github.com/boxops/portal/common/repository"
)

var (
	// ErrNotFound is returned when the audit log, subscriber or run does not exist in the organization
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when resolving an audit log that is not flagged
	ErrInvalidTransition = errors.New("invalid audit status transition")

	// ErrInvalidResolution is returned when resolution input is rejected
	ErrInvalidResolution = errors.New("invalid resolution")

	// ErrSubscriberBusy is returned when another audit of the same subscriber is in flight
	ErrSubscriberBusy = errors.New("subscriber audit already in progress")

	// ErrNoIdentity is returned when a lookup has neither a customer ID nor an email
	ErrNoIdentity = errors.New("customer id or email is required")

	// ErrInvalidAlias is returned when a SKU alias fails validation
	ErrInvalidAlias = errors.New("invalid sku alias")

	// ErrInvalidFilter is returned when a migration filter expression does not compile
	ErrInvalidFilter = errors.New("invalid subscriber filter")
)

// storeErr maps repository sentinels onto service sentinels
func storeErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrNotResolvable):
		return ErrInvalidTransition
	default:
		return err
	}
}
