package domain

import "errors"

var (
	ErrSlideNotFound = errors.New("slide not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
)
