package kernel

import "fmt"

// runSafely calls fn and converts a panic into an error tagged with scope.
func runSafely(scope string, fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%s: panic recovered: %v", scope, recovered)
		}
	}()

	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", scope, err)
	}

	return nil
}
