package main

import "errors"

// Failure taxonomy. Every rejected transaction wraps one of these so the
// kind stays machine-distinguishable via errors.Is while the message carries
// the specifics.
var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrDuplicateQRCode        = errors.New("qr code already registered")
	ErrInvalidExpiry          = errors.New("invalid expiry date")
	ErrNotFound               = errors.New("not found")
	ErrNotAuthorizedRecipient = errors.New("caller is not the designated recipient")
	ErrAlreadyReceived        = errors.New("shipment already received")
	ErrPaused                 = errors.New("contract is paused")
	ErrSoulBound              = errors.New("soul-bound ownership token")
	ErrInvalidArgument        = errors.New("invalid argument")
)
