// Package network implements device.Network for Linux hosts.
// Joined means the interface has a usable IPv4 address.
package network

import (
	"net"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/btnreport/device"
)

// compile-time interface compliance test
var (
	_ device.Network         = Static{}
	_ device.Network         = new(Iface)
	_ device.NetworkStatuser = new(Iface)
	_ device.Network         = new(WPA)
	_ device.NetworkStatuser = new(WPA)
)

const (
	StatusStatic      = "static"
	StatusNoInterface = "no_interface"
	StatusNoAddress   = "no_address"
	StatusGotIP       = "got_ip"
	StatusJoinFailed  = "join_failed"
	StatusJoining     = "joining"
)

// Static network is always joined, for wired links managed elsewhere.
type Static struct{}

func (Static) Joined() bool                   { return true }
func (Static) Configure(string, string) error { return nil }
func (Static) RequestJoin() bool              { return true }
func (Static) Status() string                 { return StatusStatic }

type AddrsFunc func() ([]net.Addr, error)

func InterfaceAddrs(name string) AddrsFunc {
	return func() ([]net.Addr, error) {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, errors.Annotatef(err, "interface=%s", name)
		}
		return iface.Addrs()
	}
}

// Iface polls interface addresses, link is configured by someone else.
type Iface struct {
	name  string
	addrs AddrsFunc
	mu    sync.Mutex
	ip    net.IP
	err   error
}

func NewIface(name string) *Iface { return NewIfaceFunc(name, InterfaceAddrs(name)) }

func NewIfaceFunc(name string, addrs AddrsFunc) *Iface {
	return &Iface{name: name, addrs: addrs}
}

func (i *Iface) Name() string { return i.name }

func (i *Iface) Joined() bool {
	ip, err := i.poll()
	i.mu.Lock()
	i.ip, i.err = ip, err
	i.mu.Unlock()
	return ip != nil
}

func (i *Iface) Configure(string, string) error { return nil }
func (i *Iface) RequestJoin() bool              { return true }

// Status describes result of last Joined().
func (i *Iface) Status() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	switch {
	case i.err != nil:
		return StatusNoInterface
	case i.ip == nil:
		return StatusNoAddress
	default:
		return StatusGotIP + " " + i.ip.String()
	}
}

func (i *Iface) poll() (net.IP, error) {
	addrs, err := i.addrs()
	if err != nil {
		return nil, err
	}
	return firstIPv4(addrs), nil
}

func firstIPv4(addrs []net.Addr) net.IP {
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip4 := ip.To4(); ip4 != nil && !ip4.IsLoopback() && !ip4.IsLinkLocalUnicast() {
			return ip4
		}
	}
	return nil
}
