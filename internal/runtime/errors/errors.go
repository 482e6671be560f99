package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrConfigRequired    = sterrors.New("acapi: configuration is required")
	ErrLoggerRequired    = sterrors.New("acapi: logger is required")
	ErrAppIDRequired     = sterrors.New("acapi: app id is required")
	ErrEventNameRequired = sterrors.New("acapi: event name is required")
	ErrBrokerClosed      = sterrors.New("acapi: broker connection is closed")
)

// Connection steps reported by ConnectionError.
const (
	StepDial            = "dial"
	StepChannel         = "channel"
	StepQueueDeclare    = "queue_declare"
	StepExchangeDeclare = "exchange_declare"
	StepQueueBind       = "queue_bind"
	StepPublish         = "publish"
)

// ConnectionError reports a broker failure while connecting, declaring the
// topology, or publishing. The connection state is always left absent or
// fully established when one is returned.
type ConnectionError struct {
	Step string
	Err  error
}

func (e ConnectionError) Error() string {
	return fmt.Sprintf("acapi: broker %s failed: %v", e.Step, e.Err)
}

func (e ConnectionError) Unwrap() error {
	return e.Err
}

// NewConnectionError wraps err as a ConnectionError for the given step.
// Returns nil when err is nil.
func NewConnectionError(step string, err error) error {
	if err == nil {
		return nil
	}
	return ConnectionError{Step: step, Err: err}
}

// TransformError reports a payload value that cannot be turned into its wire
// form. Key is the payload key whose value failed, if known.
type TransformError struct {
	Key string
	Err error
}

func (e TransformError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("acapi: cannot transform event: %v", e.Err)
	}
	return fmt.Sprintf("acapi: cannot transform payload key %q: %v", e.Key, e.Err)
}

func (e TransformError) Unwrap() error {
	return e.Err
}

// NewTransformError wraps err as a TransformError. Returns nil when err is nil.
func NewTransformError(key string, err error) error {
	if err == nil {
		return nil
	}
	return TransformError{Key: key, Err: err}
}

// ConfigValidationError wraps configuration validation failures.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("acapi: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError returns nil if err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// IsConnection reports whether err carries a ConnectionError.
func IsConnection(err error) bool {
	var target ConnectionError
	return sterrors.As(err, &target)
}

// IsTransform reports whether err carries a TransformError.
func IsTransform(err error) bool {
	var target TransformError
	return sterrors.As(err, &target)
}
