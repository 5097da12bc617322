//go:build windows

package cmd

import "syscall"

const (
	errnoInvalid      = int(syscall.EINVAL)
	errnoNotSupported = int(syscall.ENOTSUP)
)
