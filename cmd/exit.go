// exit.go - Exit-Codes aus Fehlern ableiten
package cmd

import (
	"errors"
	"syscall"

	"github.com/mltools/mltools/fs/tflite"
	"github.com/mltools/mltools/transform"
)

// ExitCode - Bildet err auf den Prozess-Exit-Code ab. Betriebssystem-Fehler
// behalten ihre errno, Bedien- und Formatfehler werden EINVAL, nicht
// replizierbare Operatoren ENOTSUP.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var errno syscall.Errno
	switch {
	case errors.As(err, &errno) && errno != 0:
		return int(errno)
	case errors.Is(err, transform.ErrUnsupportedOperator):
		return errnoNotSupported
	case errors.Is(err, transform.ErrUsage), errors.Is(err, tflite.ErrMalformed):
		return errnoInvalid
	default:
		return 1
	}
}
