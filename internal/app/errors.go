package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid email or password")
	ErrUserNotFound      = errors.New("user not found")

	// Not found also covers records owned by another user.
	ErrSessionNotFound  = errors.New("session not found")
	ErrDocumentNotFound = errors.New("document not found")

	ErrMessageEmpty   = errors.New("message content is empty")
	ErrMessageTooLong = errors.New("message content is too long")

	ErrNotPDF       = errors.New("only pdf files are accepted")
	ErrFileTooLarge = errors.New("file exceeds upload limit")
	ErrEmptyFile    = errors.New("file is empty")

	ErrCascadeIncomplete = errors.New("session delete incomplete")
)
