package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Service constants.
const (
	// ServiceType is the DNS-SD service advertised by heating hubs.
	ServiceType = "_smart-heating._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultPort is assumed when an entry carries no port.
	DefaultPort = 8123
)

// TXT record keys.
const (
	txtVersion = "version"
	txtAPIPath = "api_path"
	txtTLS     = "tls"
)

// ErrNotFound means no hub was discovered within the deadline.
var ErrNotFound = errors.New("no hub found")

// Hub is a discovered heating hub.
type Hub struct {
	// InstanceName is the advertised instance name.
	InstanceName string

	// Host is the advertised hostname.
	Host string

	// Port is the API port.
	Port uint16

	// Addresses are the hub's IP addresses, aggregated across
	// interfaces.
	Addresses []string

	// Version is the advertised API version.
	Version string

	// APIPath is the advertised API base path.
	APIPath string

	// TLS indicates the hub serves HTTPS/WSS.
	TLS bool
}

// BaseURL returns the hub's HTTP API base URL.
func (h *Hub) BaseURL() string {
	scheme := "http"
	if h.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, h.addr(), h.Port)
}

// WebSocketURL returns the hub's realtime endpoint URL.
func (h *Hub) WebSocketURL() string {
	scheme := "ws"
	if h.TLS {
		scheme = "wss"
	}
	path := h.APIPath
	if path == "" {
		path = "/api/websocket"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, h.addr(), h.Port, path)
}

// addr prefers a concrete address over the mDNS hostname, which not
// every resolver can handle.
func (h *Hub) addr() string {
	if len(h.Addresses) > 0 {
		return h.Addresses[0]
	}
	return strings.TrimSuffix(h.Host, ".")
}

// Config configures the browser.
type Config struct {
	// Interface restricts browsing to one network interface. Empty
	// means all interfaces.
	Interface string
}

// Browser finds heating hubs on the local network.
type Browser struct {
	config Config
}

// NewBrowser creates a browser.
func NewBrowser(config Config) *Browser {
	return &Browser{config: config}
}

// Browse streams hubs as they are discovered until the context ends.
// Entries for the same instance on multiple interfaces are aggregated
// into a single hub.
func (b *Browser) Browse(ctx context.Context) (<-chan *Hub, error) {
	out := make(chan *Hub)

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	opts := b.browserOptions()

	go func() {
		defer close(out)

		hubs := make(map[string]*Hub)

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				hub := entryToHub(entry)
				if hub == nil {
					continue
				}

				existing, found := hubs[hub.InstanceName]
				if found {
					existing.Addresses = mergeAddresses(existing.Addresses, hub.Addresses)
					continue
				}

				hubs[hub.InstanceName] = hub
				select {
				case out <- hub:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				if existing, found := hubs[entry.Instance]; found {
					existing.Addresses = removeAddresses(existing.Addresses, entry)
					if len(existing.Addresses) == 0 {
						delete(hubs, entry.Instance)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
	}()

	return out, nil
}

// Find returns the first hub discovered within the timeout.
func (b *Browser) Find(ctx context.Context, timeout time.Duration) (*Hub, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	select {
	case hub, ok := <-results:
		if !ok {
			return nil, ErrNotFound
		}
		return hub, nil
	case <-ctx.Done():
		return nil, ErrNotFound
	}
}

func (b *Browser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption

	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}

	return opts
}

// entryToHub converts a zeroconf entry to a Hub.
func entryToHub(entry *zeroconf.ServiceEntry) *Hub {
	if entry == nil {
		return nil
	}

	txt := parseTXT(entry.Text)

	port := uint16(entry.Port)
	if port == 0 {
		port = DefaultPort
	}

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &Hub{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Port:         port,
		Addresses:    addrs,
		Version:      txt[txtVersion],
		APIPath:      txt[txtAPIPath],
		TLS:          txt[txtTLS] == "1" || txt[txtTLS] == "true",
	}
}

// parseTXT splits key=value TXT strings into a map. Keys without a
// value map to the empty string; malformed entries are skipped.
func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, rec := range records {
		if rec == "" {
			continue
		}
		key, value, _ := strings.Cut(rec, "=")
		if key == "" {
			continue
		}
		out[key] = value
	}
	return out
}

// mergeAddresses adds new addresses, avoiding duplicates.
func mergeAddresses(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range incoming {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses drops the addresses carried by a removal entry.
func removeAddresses(addresses []string, entry *zeroconf.ServiceEntry) []string {
	toRemove := make(map[string]bool)
	for _, ip := range entry.AddrIPv4 {
		toRemove[ip.String()] = true
	}
	for _, ip := range entry.AddrIPv6 {
		toRemove[ip.String()] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}
