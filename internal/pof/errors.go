package pof

import "errors"

var (
	ErrNotFound            = errors.New("pof: not found")
	ErrAlreadyExists       = errors.New("pof: already exists")
	ErrExpired             = errors.New("pof: challenge expired")
	ErrAlreadyVerified     = errors.New("pof: already verified")
	ErrBadSignature        = errors.New("pof: bad signature")
	ErrInvalidPrivacyLevel = errors.New("pof: invalid privacy level")
	ErrInvalidProof        = errors.New("pof: invalid proof payload")
)
