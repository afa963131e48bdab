package types

import (
	"errors"
	"fmt"
)

// Sentinels for the error taxonomy. Typed errors below match them via errors.Is.
var (
	ErrInput           = errors.New("input error")
	ErrNumericOverflow = errors.New("numeric overflow")
	ErrDesync          = errors.New("desync condition")
	ErrStorage         = errors.New("storage error")
	ErrConfiguration   = errors.New("configuration error")
)

// InputError reports a rejected sample. The sample is dropped and the last
// valid state is retained.
type InputError struct {
	Sample Sample
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input error: %s (t=%g phase=%g%+gi)",
		e.Reason, e.Sample.Timestamp, e.Sample.Phase.Re, e.Sample.Phase.Im)
}

func (e *InputError) Is(target error) bool { return target == ErrInput }

// OverflowError reports that a pathway computation left the safe numeric
// range. The pathway window was reset and the tick's coherence treated as 0.
type OverflowError struct {
	Pathway string
	Value   float64
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("numeric overflow in %s pathway (magnitude %g)", e.Pathway, e.Value)
}

func (e *OverflowError) Is(target error) bool { return target == ErrNumericOverflow }

// StorageError reports a persistence failure. It never stops the tick loop;
// the in-memory view stays authoritative.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func (e *StorageError) Unwrap() error { return e.Err }

// ConfigError reports an invalid construction parameter. It is fatal.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// Configf builds a ConfigError for field with a formatted reason.
func Configf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
