package lib

import "fmt"

// WrapError wraps err with a sentinel so callers can match either of them with errors.Is
func WrapError(target error, err error) error {
	if err == nil {
		return target
	}
	return fmt.Errorf("%w: %w", target, err)
}
