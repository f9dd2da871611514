// Package services defines the business logic for deals and dashboards.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer. Every failure mode a caller may
// branch on has its own sentinel; nothing here is retried automatically.
package services

import "errors"

// Not-found errors (absent referenced entities).
var (
	// ErrDealNotFound indicates that the requested deal does not exist.
	ErrDealNotFound = errors.New("deal not found")

	// ErrPropertyNotFound indicates that the referenced property is absent
	// from the property catalog.
	ErrPropertyNotFound = errors.New("property not found")

	// ErrBuyerNotFound indicates that the referenced buyer is absent from
	// the user directory.
	ErrBuyerNotFound = errors.New("buyer not found")

	// ErrAgentNotFound indicates that the referenced agent is absent from
	// the user directory.
	ErrAgentNotFound = errors.New("agent not found")
)

// Conflict errors.
var (
	// ErrDuplicateDeal is returned when a deal already exists for the
	// (property, buyer) pair.
	ErrDuplicateDeal = errors.New("deal already exists for this property and buyer")

	// ErrStaleDeal is returned when a concurrent writer mutated the deal
	// between read and write. The caller may re-read and retry.
	ErrStaleDeal = errors.New("deal was modified concurrently")
)

// Forbidden errors (role/ownership violations).
var (
	// ErrNotAnAgent is returned when the supplied agent does not hold the
	// AGENT or ADMIN role.
	ErrNotAnAgent = errors.New("user is not an agent")

	// ErrAgentOwnsProperty is returned when the supplied agent is the
	// property's owner; agents may not broker deals on their own property.
	ErrAgentOwnsProperty = errors.New("agents cannot broker deals on property they own")

	// ErrBuyerOwnsProperty is returned when the buyer is the property's
	// owner; a user cannot buy from themselves.
	ErrBuyerOwnsProperty = errors.New("buyer cannot open a deal on their own property")
)

// Invalid-argument and transition errors.
var (
	// ErrInvalidPrice is returned when an agreed price is supplied but is
	// not strictly positive.
	ErrInvalidPrice = errors.New("agreed price must be greater than 0")

	// ErrInvalidStage is returned when a stage value outside the
	// enumeration reaches the engine.
	ErrInvalidStage = errors.New("invalid deal stage")

	// ErrStageRegression is returned when a transition targets a stage with
	// a lower rank than the deal's current stage.
	ErrStageRegression = errors.New("cannot move deal to a previous stage")
)
