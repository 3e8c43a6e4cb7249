package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// RelayKeyword is the --relay value that asks for LAN discovery.
const RelayKeyword = "mdns"

var ErrNoRelay = errors.New("no relay found on the local network")

// RelayServiceName is the fully qualified browse name of relay instances.
func RelayServiceName() string {
	return fmt.Sprintf("%s.%s.", DefaultServerType, DefaultDomain)
}

// RelayURL builds the websocket URL of a discovered relay. A "path" TXT
// record overrides the default "/".
func RelayURL(svc ServiceInfo) string {
	path := svc.Text["path"]
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	host := net.JoinHostPort(svc.Addr.String(), strconv.Itoa(svc.Port))
	return "ws://" + host + path
}

// FindRelay returns the URL of the first relay announced on the LAN.
func FindRelay(ctx context.Context, adapter Adapter) (string, error) {
	for result := range adapter.Discover(ctx, RelayServiceName()) {
		if result.Error != nil {
			return "", result.Error
		}
		if len(result.Services) > 0 {
			return RelayURL(result.Services[0]), nil
		}
	}
	if err := context.Cause(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	return "", ErrNoRelay
}
