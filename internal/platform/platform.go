// Package platform detects the target platform at runtime and selects the
// capability set the application attaches during setup.
package platform

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// EnvOverride forces the detected platform kind when set
const EnvOverride = "EIDWALLET_PLATFORM"

// Kind is the platform family the application runs on
type Kind string

const (
	KindAuto    Kind = "auto"
	KindDesktop Kind = "desktop"
	KindMobile  Kind = "mobile"
)

// Platform describes the running platform
type Platform struct {
	OS   string
	Kind Kind
}

// Mobile reports whether the platform is a mobile target
func (p Platform) Mobile() bool {
	return p.Kind == KindMobile
}

func (p Platform) String() string {
	return fmt.Sprintf("%s/%s", p.OS, p.Kind)
}

// ParseKind parses a platform kind; the empty string means auto
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindAuto:
		return KindAuto, nil
	case KindDesktop:
		return KindDesktop, nil
	case KindMobile:
		return KindMobile, nil
	default:
		return "", fmt.Errorf("unknown platform kind %q (want auto, desktop or mobile)", s)
	}
}

// Detect returns the running platform. A non-auto preferred kind wins,
// then the EIDWALLET_PLATFORM environment variable, then GOOS.
func Detect(preferred Kind) (Platform, error) {
	return detect(runtime.GOOS, preferred, os.Getenv(EnvOverride))
}

func detect(goos string, preferred Kind, env string) (Platform, error) {
	p := Platform{OS: goos, Kind: kindForOS(goos)}

	if preferred != "" && preferred != KindAuto {
		if _, err := ParseKind(string(preferred)); err != nil {
			return Platform{}, err
		}
		p.Kind = preferred
		return p, nil
	}

	if env != "" {
		kind, err := ParseKind(env)
		if err != nil {
			return Platform{}, fmt.Errorf("invalid %s: %w", EnvOverride, err)
		}
		if kind != KindAuto {
			p.Kind = kind
		}
	}

	return p, nil
}

func kindForOS(goos string) Kind {
	switch goos {
	case "android", "ios":
		return KindMobile
	default:
		return KindDesktop
	}
}
