package emitter

import (
	"net"
)

// UnknownHost is used when no address can be determined.
const UnknownHost = "UnknownIP"

// LocalIP returns the first non-loopback IPv4 address of this machine.
func LocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return UnknownHost
	}
	return firstIPv4(addrs)
}

func firstIPv4(addrs []net.Addr) string {
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return UnknownHost
}
