// Package workers wires the built-in backends into a registry.
package workers

import (
	"sync"

	"github.com/nmslite/hostgatherer/internal/registry"
	"github.com/nmslite/hostgatherer/internal/workers/hyperv"
	"github.com/nmslite/hostgatherer/internal/workers/libvirt"
	"github.com/nmslite/hostgatherer/internal/workers/netbox"
	"github.com/nmslite/hostgatherer/internal/workers/nmap"
	"github.com/nmslite/hostgatherer/internal/workers/snmp"
)

var builtins = map[string]registry.Factory{
	hyperv.Type:  hyperv.New,
	libvirt.Type: libvirt.New,
	netbox.Type:  netbox.New,
	nmap.Type:    nmap.New,
	snmp.Type:    snmp.New,
}

var (
	defaultRegistry *registry.Registry
	registryOnce    sync.Once
)

// Registry returns the process wide registry holding every built-in worker.
func Registry() *registry.Registry {
	registryOnce.Do(func() {
		defaultRegistry = registry.NewRegistry()
		Register(defaultRegistry)
	})
	return defaultRegistry
}

// Register adds every built-in worker to r. It panics on a duplicate name.
func Register(r *registry.Registry) {
	for name, factory := range builtins {
		r.MustRegister(name, factory)
	}
}
