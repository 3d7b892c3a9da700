package entity

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrValidation       = errors.New("invalid request")
	ErrStorageWrite     = errors.New("storage write")
	ErrStorageRead      = errors.New("storage read")
	ErrPublish          = errors.New("publish")
	ErrDecode           = errors.New("decode image")

	// ErrPermanent marks a job failure that must not be redelivered.
	ErrPermanent = errors.New("permanent failure")
)
