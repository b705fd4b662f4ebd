// Package utils holds small helpers shared across switchboard packages.
package utils

// Build metadata, overridden at link time, for example:
//
//	-ldflags "-X github.com/papercomputeco/switchboard/pkg/utils.Version=v0.3.0"
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "unknown"
)
