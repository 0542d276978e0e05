package tuner

import "fmt"

// ConfigError is returned when tuner configuration or engine options are rejected
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("tuner: invalid config: %s", e.Message)
}

// ErrInvalidConfig creates an error for invalid configuration
func ErrInvalidConfig(format string, args ...interface{}) error {
	return ConfigError{Message: fmt.Sprintf(format, args...)}
}
