package paimon

import "errors"

var (
	// ErrInvalidEvent indicates that an event does not satisfy protocol invariants.
	ErrInvalidEvent = errors.New("paimon: invalid event")
	// ErrInvalidSubscription indicates that a subscription configuration is invalid.
	ErrInvalidSubscription = errors.New("paimon: invalid subscription")
	// ErrSubscriptionClosed indicates that a subscription is no longer active.
	ErrSubscriptionClosed = errors.New("paimon: subscription closed")
	// ErrEventDropped indicates a non-blocking backpressure drop.
	ErrEventDropped = errors.New("paimon: event dropped due to backpressure")
	// ErrServiceAlreadyRegistered indicates duplicate service registration.
	ErrServiceAlreadyRegistered = errors.New("paimon: service already registered")
	// ErrServiceNotFound indicates a service lookup miss.
	ErrServiceNotFound = errors.New("paimon: service not found")
	// ErrModuleAlreadyRegistered indicates duplicate module registration.
	ErrModuleAlreadyRegistered = errors.New("paimon: module already registered")
	// ErrDriverAlreadyRegistered indicates duplicate driver registration.
	ErrDriverAlreadyRegistered = errors.New("paimon: driver already registered")
	// ErrInvalidOutboundRequest indicates a malformed outbound request.
	ErrInvalidOutboundRequest = errors.New("paimon: invalid outbound request")
	// ErrSinkNotFound indicates no outbound sink matches a target.
	ErrSinkNotFound = errors.New("paimon: sink not found")
)
