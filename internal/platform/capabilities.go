package platform

import (
	"github.com/eidwallet/eidwallet/internal/plugin"
)

// Capabilities is the set of plugins attached during setup for a platform.
// Desktop platforms get the empty set; mobile platforms get the biometric,
// barcode-scanner and crypto-hw plugins, in that order.
type Capabilities struct {
	kind      Kind
	factories []plugin.Factory
}

// MobileCapabilities builds the mobile capability set
func MobileCapabilities(biometric, barcode, cryptoHW plugin.Factory) Capabilities {
	return Capabilities{
		kind:      KindMobile,
		factories: []plugin.Factory{biometric, barcode, cryptoHW},
	}
}

// NoCapabilities is the empty set used on desktop platforms
func NoCapabilities() Capabilities {
	return Capabilities{kind: KindDesktop}
}

// Kind returns the platform kind this set was built for
func (c Capabilities) Kind() Kind {
	if c.kind == "" {
		return KindDesktop
	}
	return c.kind
}

// Factories returns the plugin factories in attach order
func (c Capabilities) Factories() []plugin.Factory {
	factories := make([]plugin.Factory, len(c.factories))
	copy(factories, c.factories)
	return factories
}

// Empty reports whether the set attaches nothing
func (c Capabilities) Empty() bool {
	return len(c.factories) == 0
}
