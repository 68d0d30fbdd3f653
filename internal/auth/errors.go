package auth

import "errors"

var (
	ErrInvalidInput   = errors.New("auth: invalid input")
	ErrInvalidToken   = errors.New("auth: invalid token")
	ErrMissingSecret  = errors.New("auth: token secret is not configured")
	ErrUnknownRole    = errors.New("auth: unknown role")
	ErrProfileMissing = errors.New("auth: user profile not found")
	ErrPasswordEmpty  = errors.New("auth: password is empty")
	ErrPasswordMatch  = errors.New("auth: password does not match")
)
