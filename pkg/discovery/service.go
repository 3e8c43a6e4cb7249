package discovery

import (
	"context"
	"net"
)

const (
	DefaultServerType = "_dx-relay._tcp"
	DefaultDomain     = "local"
)

type ServiceInfo struct {
	Name   string // instance name, e.g. "host-1a2b3c4d"
	Type   string // service name, e.g. "_dx-relay._tcp"
	Domain string // domain, e.g. "local"
	Addr   net.IP
	Port   int
	Text   map[string]string
}

// DiscoveryResult is one snapshot of the services currently visible, or a lookup error.
type DiscoveryResult struct {
	Services []ServiceInfo
	Error    error
}

type Adapter interface {
	Announce(ctx context.Context, service ServiceInfo) error
	Discover(ctx context.Context, service string) <-chan DiscoveryResult
}
