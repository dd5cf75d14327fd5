package domain

import "errors"

var (
	// ErrSetNotFound indicates the requested question set does not exist in the bank.
	ErrSetNotFound = errors.New("question set not found")
	// ErrSetEmpty indicates the question set exists but contains no questions.
	ErrSetEmpty = errors.New("question set has no questions")
	// ErrNoActiveSession is returned when an operation needs a started question set.
	ErrNoActiveSession = errors.New("no active question set")
	// ErrNoProgress indicates no progress record exists for the set.
	ErrNoProgress = errors.New("no progress found for question set")
	// ErrNoCurrentQuestion is returned when the session index points at nothing.
	ErrNoCurrentQuestion = errors.New("no current question")
)
