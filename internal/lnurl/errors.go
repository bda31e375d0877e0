package lnurl

import "errors"

var (
	ErrNotFound        = errors.New("lnurl: not found")
	ErrAlreadyExists   = errors.New("lnurl: already exists")
	ErrExpired         = errors.New("lnurl: challenge expired")
	ErrAlreadyVerified = errors.New("lnurl: already verified")
	ErrBadSignature    = errors.New("lnurl: bad signature")
)
