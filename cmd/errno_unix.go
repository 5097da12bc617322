//go:build unix

package cmd

import "golang.org/x/sys/unix"

const (
	errnoInvalid      = int(unix.EINVAL)
	errnoNotSupported = int(unix.ENOTSUP)
)
