package logging

import (
	"context"
	"strings"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service type collectors advertise and clients
// browse for.
const ServiceType = "_beacon-log._tcp"

const serviceDomain = "local."

// ServiceInstance is a discovered collector endpoint.
type ServiceInstance struct {
	Name string
	Host string
	Port int
}

// Discoverer locates collector instances on the local network. Browse
// returns once the listener is running; found and lost fire from a
// background goroutine until ctx is done. Implementations are injected
// into the Transport so tests can drive discovery without a network.
type Discoverer interface {
	Browse(ctx context.Context, found func(ServiceInstance), lost func(name string)) error
}

// MDNSDiscoverer browses for collectors via multicast DNS.
type MDNSDiscoverer struct{}

// Browse starts an mDNS browse for ServiceType. Entries with TTL 0 are
// goodbye packets and surface as lost events.
func (MDNSDiscoverer) Browse(ctx context.Context, found func(ServiceInstance), lost func(name string)) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return err
	}
	entries := make(chan *zeroconf.ServiceEntry, 8)
	if err := resolver.Browse(ctx, ServiceType, serviceDomain, entries); err != nil {
		return err
	}
	go func() {
		for entry := range entries {
			if entry == nil {
				continue
			}
			if entry.TTL == 0 {
				lost(entry.Instance)
				continue
			}
			host := strings.TrimSuffix(entry.HostName, ".")
			if len(entry.AddrIPv4) > 0 {
				host = entry.AddrIPv4[0].String()
			}
			found(ServiceInstance{Name: entry.Instance, Host: host, Port: entry.Port})
		}
	}()
	return nil
}

// Advertisement keeps a collector's mDNS registration alive until Close.
type Advertisement struct {
	server *zeroconf.Server
}

// Close withdraws the registration.
func (a *Advertisement) Close() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// Advertise registers a collector instance under ServiceType so clients
// can auto-discover it.
func Advertise(instance string, port int) (*Advertisement, error) {
	server, err := zeroconf.Register(instance, ServiceType, serviceDomain, port, []string{"v=1"}, nil)
	if err != nil {
		return nil, err
	}
	return &Advertisement{server: server}, nil
}
