package discovery

import (
	"fmt"
	"net"
)

// outboundIP derives the host's LAN address from its outbound routing
// table. No packet is sent: a UDP "connect" only selects the route.
func outboundIP() (string, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("resolve outbound route: %w", err)
	}
	defer func() { _ = conn.Close() }()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address: %v", conn.LocalAddr())
	}

	return addr.IP.String(), nil
}
