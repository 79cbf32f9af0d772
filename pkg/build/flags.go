// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata stamped into the spectro binary at link
// time. Release builds inject every field with -ldflags, for example:
//
//	go build -ldflags "-X spectro/pkg/build.buildName=spectro \
//	    -X spectro/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds run with the defaults, which Initialize reports as an
// error so the caller can decide whether that is fatal.
package build

import (
	"errors"
	"fmt"
)

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String renders the info the way `spectro --version` prints it.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

const description = "Real-time scrolling spectrogram for live input and audio files"

// Populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &Info{
		Name:        "spectro",
		Description: description,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
)

// ErrMissingFlags is wrapped by Initialize when any ldflag was not injected.
var ErrMissingFlags = errors.New("build flags missing")

// Initialize validates the ldflags variables and copies them into the
// package Info. On error the development defaults remain in place.
func Initialize() error {
	if buildName == "" {
		return fmt.Errorf("%w: BuildName is required", ErrMissingFlags)
	}
	if buildTime == "" {
		return fmt.Errorf("%w: BuildTime is required", ErrMissingFlags)
	}
	if buildCommit == "" {
		return fmt.Errorf("%w: BuildCommit is required", ErrMissingFlags)
	}
	if buildVersion == "" {
		return fmt.Errorf("%w: BuildVersion is required", ErrMissingFlags)
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Info {
	return buildFlags
}
