package engine

import "errors"

var (
	// ErrNoSteps signals a workflow with zero configured steps. A session
	// cannot exist for such a workflow; treating it as instantly complete
	// would hide a configuration bug.
	ErrNoSteps = errors.New("workflow has no configured steps")

	// ErrPayloadInvalid signals an advance payload rejected by the current
	// step's payload schema.
	ErrPayloadInvalid = errors.New("payload does not match step schema")

	// ErrAlreadyComplete signals an advance attempted past the end of the
	// workflow.
	ErrAlreadyComplete = errors.New("onboarding already complete")
)

// IsNoSteps checks if the error is a zero-configured-steps error.
func IsNoSteps(err error) bool {
	return errors.Is(err, ErrNoSteps)
}

// IsPayloadInvalid checks if the error is a payload schema rejection.
func IsPayloadInvalid(err error) bool {
	return errors.Is(err, ErrPayloadInvalid)
}

// IsAlreadyComplete checks if the error is an advance past the end.
func IsAlreadyComplete(err error) bool {
	return errors.Is(err, ErrAlreadyComplete)
}
