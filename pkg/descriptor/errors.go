package descriptor

import (
	"errors"
	"fmt"
)

// ErrMalformedDescriptor is wrapped by every GenerationError.
var ErrMalformedDescriptor = errors.New("malformed interface descriptor")

// GenerationError reports a descriptor that cannot produce bindings. It is
// fatal for the whole generation pass.
type GenerationError struct {
	Contract string
	Path     string
	Reason   string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrMalformedDescriptor, e.Path, e.Reason)
}

func (e *GenerationError) Unwrap() error {
	return ErrMalformedDescriptor
}

// Fatalf builds a GenerationError for the element at path.
func Fatalf(contract, path, format string, args ...any) *GenerationError {
	return &GenerationError{
		Contract: contract,
		Path:     path,
		Reason:   fmt.Sprintf(format, args...),
	}
}
