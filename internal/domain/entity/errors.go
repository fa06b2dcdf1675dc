package entity

import "errors"

var (
	ErrJobNotFound        = errors.New("job not found")
	ErrJobTerminal        = errors.New("job already in a terminal state")
	ErrProgressRegression = errors.New("progress cannot move backwards")
	ErrInvalidRequest     = errors.New("invalid summarization request")
	ErrNoScenes           = errors.New("no scenes found")
)
