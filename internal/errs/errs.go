package errs

import "errors"

var (
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrDuplicateNumber = errors.New("ticket number already taken")

	ErrCodeMismatch = errors.New("verification code does not match")
	ErrCodeExpired  = errors.New("verification code expired")
	ErrCodeUnknown  = errors.New("unknown verification challenge")

	ErrInvalidCredentials = errors.New("invalid email or password")
)
