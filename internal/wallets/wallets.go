// Package wallets exposes wallet capability discovery as data. Core logic
// never special-cases a wallet brand; the frontend decides what to do with
// an unavailable provider.
package wallets

// Capability describes one wallet integration the deployment knows about.
type Capability struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// Discoverer lists wallet capabilities.
type Discoverer interface {
	Discover() []Capability
}

// StaticDiscoverer serves a fixed capability list from configuration.
type StaticDiscoverer struct {
	capabilities []Capability
}

// NewStaticDiscoverer builds a discoverer over the given list. With an
// empty list the default integrations are served.
func NewStaticDiscoverer(capabilities []Capability) *StaticDiscoverer {
	if len(capabilities) == 0 {
		capabilities = []Capability{
			{Name: "OKX Wallet", Available: true},
			{Name: "MetaMask", Available: true},
			{Name: "WalletConnect", Available: true},
			{Name: "Coinbase Wallet", Available: false},
		}
	}
	return &StaticDiscoverer{capabilities: capabilities}
}

// Discover returns a copy of the capability list.
func (d *StaticDiscoverer) Discover() []Capability {
	out := make([]Capability, len(d.capabilities))
	copy(out, d.capabilities)
	return out
}
