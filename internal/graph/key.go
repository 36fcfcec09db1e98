package graph

import (
	"fmt"
	"strconv"

	"github.com/CZERTAINLY/vuln-lens/internal/model"
)

// Kind is the type of a graph node.
type Kind uint8

const (
	KindSubnet Kind = iota + 1
	KindHost
	KindService
	KindFinding
)

func (k Kind) String() string {
	switch k {
	case KindSubnet:
		return "subnet"
	case KindHost:
		return "host"
	case KindService:
		return "service"
	case KindFinding:
		return "finding"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Symbol is the marker symbol renderers use for the kind.
func (k Kind) Symbol() string {
	switch k {
	case KindSubnet:
		return "diamond"
	case KindService:
		return "square"
	case KindFinding:
		return "x"
	default:
		return "circle"
	}
}

// Key is the identity of a node. Nodes whose defining fields are equal share
// a Key and collapse into one node. Only the fields relevant for Kind are
// set.
type Key struct {
	Kind     Kind
	Scope    string // subnet
	IP       string // host, service, finding
	Protocol string // service
	Port     int    // service, finding when HasPort
	HasPort  bool
	PluginID string // finding
}

func SubnetKey(scope string) Key {
	return Key{Kind: KindSubnet, Scope: scope}
}

func HostKey(ip string) Key {
	return Key{Kind: KindHost, IP: ip}
}

func ServiceKey(ip, protocol string, port int) Key {
	return Key{Kind: KindService, IP: ip, Protocol: protocol, Port: port, HasPort: true}
}

// FindingKey returns the key of a finding, a nil port is a finding not bound
// to any port.
func FindingKey(ip, pluginID string, port *int) Key {
	k := Key{Kind: KindFinding, IP: ip, PluginID: pluginID}
	if port != nil {
		k.Port = *port
		k.HasPort = true
	}
	return k
}

// Host returns the key of the host owning k.
func (k Key) Host() Key {
	return HostKey(k.IP)
}

// String returns a stable textual id, e.g. svc:10.0.0.1:tcp:443.
func (k Key) String() string {
	switch k.Kind {
	case KindSubnet:
		return "subnet:" + k.Scope
	case KindHost:
		return "host:" + k.IP
	case KindService:
		return fmt.Sprintf("svc:%s:%s:%d", k.IP, k.Protocol, k.Port)
	case KindFinding:
		return fmt.Sprintf("fin:%s:%s:%s", k.IP, k.PluginID, k.portText())
	default:
		return "unknown:"
	}
}

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k Key) portText() string {
	if !k.HasPort {
		return model.UnknownPortPlaceholder
	}
	return strconv.Itoa(k.Port)
}
