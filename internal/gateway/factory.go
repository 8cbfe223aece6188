package gateway

import (
	"sync"

	"github.com/OtchereDev/ris-common-sdk/pkg/io-dicom/network"
)

// destinationFactory manages SDK destinations, one per calling/called AE pair and address
type destinationFactory struct {
	mu           sync.RWMutex
	destinations map[string]*network.Destination
}

func newDestinationFactory() *destinationFactory {
	return &destinationFactory{
		destinations: make(map[string]*network.Destination),
	}
}

func destinationKey(ep Endpoint) string {
	return ep.CallingAETitle + ">" + ep.String()
}

// get returns the destination for ep, creating it on first use
func (f *destinationFactory) get(ep Endpoint) *network.Destination {
	key := destinationKey(ep)

	f.mu.RLock()
	dest, exists := f.destinations[key]
	f.mu.RUnlock()

	if exists {
		return dest
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double-check after acquiring write lock
	if dest, exists := f.destinations[key]; exists {
		return dest
	}

	dest = &network.Destination{
		HostName:  ep.Host,
		Port:      ep.Port,
		CalledAE:  ep.CalledAETitle,
		CallingAE: ep.CallingAETitle,
	}
	f.destinations[key] = dest
	return dest
}

// size reports the number of cached destinations
func (f *destinationFactory) size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.destinations)
}
