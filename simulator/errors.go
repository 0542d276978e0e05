package simulator

import "fmt"

// SimError is a custom error type for simulation errors
type SimError struct {
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("simulation error: %s", e.Message)
}

// ErrInvalidConfig creates an error for invalid configuration
func ErrInvalidConfig(format string, args ...interface{}) error {
	return SimError{Message: "invalid config: " + fmt.Sprintf(format, args...)}
}

// ErrRejectedChange is returned by ApplyChanges for a change the engine refuses
func ErrRejectedChange(format string, args ...interface{}) error {
	return SimError{Message: "rejected change: " + fmt.Sprintf(format, args...)}
}
