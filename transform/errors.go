// errors.go - Fehlerarten der Transformationen
//
// Strukturfehler verwenden tflite.ErrMalformed, damit der Aufrufer nicht
// zwischen Codec und Transformation unterscheiden muss.
package transform

import (
	"errors"
	"fmt"

	"github.com/mltools/mltools/fs/tflite"
)

var (
	// ErrUsage meldet ungueltige Parameter einer Transformation
	ErrUsage = errors.New("invalid argument")

	// ErrUnsupportedOperator meldet eine Operator-Art ohne Policy (nur strikt)
	ErrUnsupportedOperator = errors.New("unsupported operator")
)

func structuralf(format string, args ...any) error {
	return &tflite.FormatError{Kind: tflite.ErrMalformed, Msg: fmt.Sprintf(format, args...)}
}

func usagef(format string, args ...any) error {
	return &tflite.FormatError{Kind: ErrUsage, Msg: fmt.Sprintf(format, args...)}
}
