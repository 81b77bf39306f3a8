package types

import (
	"errors"
	"fmt"
)

// ARCHITECTURAL DISCOVERY: Category errors are matched with errors.Is at the
// API boundary; field errors wrap ErrValidationFailed so both levels match.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrValidationFailed  = errors.New("validation failed")
	ErrStoreUnavailable  = errors.New("document store unavailable")
	ErrAggregationFailed = errors.New("statistics aggregation failed")
	ErrClassClosed       = errors.New("class is closed")
)

var (
	ErrInvalidClassCode   = fmt.Errorf("%w: class code must be 6 letters or digits", ErrValidationFailed)
	ErrInvalidClassName   = fmt.Errorf("%w: class name must be 1-100 characters", ErrValidationFailed)
	ErrInvalidStudentName = fmt.Errorf("%w: student name must be 1-50 characters", ErrValidationFailed)
	ErrInvalidStudentID   = fmt.Errorf("%w: student id must not be empty", ErrValidationFailed)
	ErrInvalidQuestionID  = fmt.Errorf("%w: question id must not be empty", ErrValidationFailed)
	ErrEmptyQuestion      = fmt.Errorf("%w: question text must not be empty", ErrValidationFailed)
	ErrQuestionTooLong    = fmt.Errorf("%w: question text exceeds 500 characters", ErrValidationFailed)
	ErrEmptyAnswer        = fmt.Errorf("%w: answer must not be empty", ErrValidationFailed)
	ErrAnswerTooLong      = fmt.Errorf("%w: answer exceeds 1000 characters", ErrValidationFailed)
	ErrInvalidAnsweredBy  = fmt.Errorf("%w: answered_by must be 1-50 characters", ErrValidationFailed)
	ErrInvalidStatus      = fmt.Errorf("%w: unknown status", ErrValidationFailed)
)
