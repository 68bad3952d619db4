// Package provider holds what the remote image generation clients share.
package provider

import "errors"

var (
	// ErrRemoteCall wraps every network or provider-side failure.
	ErrRemoteCall = errors.New("remote generation call failed")
	// ErrUnsupported is returned by providers that have no job polling.
	ErrUnsupported = errors.New("operation not supported by provider")
)
