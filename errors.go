package elastigo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/elastigo/table"
)

var (
	// ErrNilKey is returned when a nil key is passed to Insert. Empty keys are
	// legal; nil marks a caller bug.
	ErrNilKey = errors.New("key must not be nil")
)

// ErrInvalidOption indicates a table option that failed validation.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrInvalidOption struct {
	cause error
}

func (e *ErrInvalidOption) Error() string {
	return fmt.Sprintf("invalid option: %v", e.cause)
}

func (e *ErrInvalidOption) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, table.ErrNilKey) {
		return fmt.Errorf("%w: %w", ErrNilKey, err)
	}

	var elf *table.ErrInvalidLoadFactor
	var etr *table.ErrInvalidTombstoneRatio
	var emls *table.ErrInvalidMinLevelSize
	if errors.As(err, &elf) || errors.As(err, &etr) || errors.As(err, &emls) {
		return &ErrInvalidOption{cause: err}
	}

	return err
}
