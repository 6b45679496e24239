package ttlcache

import (
	"errors"
	"fmt"
)

// InvalidateError is returned when Invalidate could not finish both steps.
// If only the bump failed the delete still happened, but a fill that started
// before the call may land afterwards.
type InvalidateError struct {
	Key     string
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	var step string
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		step = "bump and delete"
	case e.BumpErr != nil:
		step = "bump"
	case e.DelErr != nil:
		step = "delete"
	default:
		return fmt.Sprintf("ttlcache: invalidate %q", e.Key)
	}
	return fmt.Sprintf("ttlcache: invalidate %q: %s failed: %v", e.Key, step, errors.Join(e.BumpErr, e.DelErr))
}

func (e *InvalidateError) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.BumpErr, e.DelErr} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
