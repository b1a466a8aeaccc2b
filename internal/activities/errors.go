package activities

import (
	"errors"

	"go.temporal.io/sdk/temporal"

	"modbot/internal/idgen"
	"modbot/internal/platform"
	"modbot/internal/store"
)

// Application error types workflows branch on.
const (
	ErrTypeDMClosed          = "DMClosed"
	ErrTypeAlreadyReversed   = "AlreadyReversed"
	ErrTypeHierarchy         = "Hierarchy"
	ErrTypeUnknownScope      = "UnknownScope"
	ErrTypeUnknownMember     = "UnknownMember"
	ErrTypeCategoryMissing   = "CategoryMissing"
	ErrTypeDuplicateID       = "DuplicateID"
	ErrTypeNotFound          = "NotFound"
	ErrTypeInvalidTransition = "InvalidTransition"
	ErrTypeIDExhausted       = "IDExhausted"
	ErrTypeInvalidInput      = "InvalidInput"
	ErrTypeResponseExpired   = "ResponseExpired"
)

var classes = []struct {
	err error
	typ string
}{
	{platform.ErrDMClosed, ErrTypeDMClosed},
	{platform.ErrAlreadyReversed, ErrTypeAlreadyReversed},
	{platform.ErrHierarchy, ErrTypeHierarchy},
	{platform.ErrUnknownScope, ErrTypeUnknownScope},
	{platform.ErrUnknownMember, ErrTypeUnknownMember},
	{platform.ErrCategoryMissing, ErrTypeCategoryMissing},
	{platform.ErrResponseExpired, ErrTypeResponseExpired},
	{store.ErrDuplicateID, ErrTypeDuplicateID},
	{store.ErrNotFound, ErrTypeNotFound},
	{store.ErrInvalidTransition, ErrTypeInvalidTransition},
	{idgen.ErrExhausted, ErrTypeIDExhausted},
}

// classify turns permanent adapter failures into non-retryable application errors. Anything
// else is returned as is and retried under the activity retry policy.
func classify(err error) error {
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return nonRetryable(err, c.typ)
		}
	}
	return err
}

func nonRetryable(err error, typ string) error {
	return temporal.NewNonRetryableApplicationError(err.Error(), typ, err)
}

// IsType reports whether err carries an application error of type typ.
func IsType(err error, typ string) bool {
	var appErr *temporal.ApplicationError
	return errors.As(err, &appErr) && appErr.Type() == typ
}
