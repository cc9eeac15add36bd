package probe

import (
	"net"
	"net/netip"

	"github.com/rileyhilliard/fleet/internal/errors"
)

// MinSweepPrefix bounds sweep size; a /16 is 65534 addresses.
const MinSweepPrefix = 16

// Hosts expands an IPv4 network into its usable host addresses. Network and
// broadcast addresses are excluded except for /31 and /32. Host bits in the
// input are ignored.
func Hosts(cidr string) ([]string, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		addr, aerr := netip.ParseAddr(cidr)
		if aerr != nil {
			return nil, errors.WrapWithCode(err, errors.ErrProbe,
				"Invalid network specification: "+cidr,
				"Use CIDR notation like 192.168.1.0/24")
		}
		prefix = netip.PrefixFrom(addr, addr.BitLen())
	}
	if !prefix.Addr().Is4() {
		return nil, errors.New(errors.ErrProbe,
			"Only IPv4 networks can be swept: "+cidr,
			"Use CIDR notation like 192.168.1.0/24")
	}
	if prefix.Bits() < MinSweepPrefix {
		return nil, errors.New(errors.ErrProbe,
			"Network "+cidr+" is too large to sweep",
			"Split it into /16 or smaller networks")
	}
	prefix = prefix.Masked()

	var out []string
	for a := prefix.Addr(); prefix.Contains(a); a = a.Next() {
		out = append(out, a.String())
		if !a.Next().IsValid() {
			break
		}
	}

	if prefix.Bits() < 31 && len(out) >= 2 {
		out = out[1 : len(out)-1]
	}
	return out, nil
}

// DefaultNetwork returns the network of the first non-loopback IPv4
// interface address, e.g. "192.168.1.0/24".
func DefaultNetwork() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrProbe, "Can't list network interfaces", "")
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			ones, _ := ipnet.Mask.Size()
			addr, ok := netip.AddrFromSlice(ipnet.IP.To4())
			if !ok {
				continue
			}
			return netip.PrefixFrom(addr, ones).Masked().String(), nil
		}
	}
	return "", errors.New(errors.ErrProbe,
		"No IPv4 network found on any interface",
		"Pass the network to sweep explicitly, e.g. 'fleet sweep 10.0.0.0/24'")
}
