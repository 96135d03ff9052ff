package utils

import (
	"fmt"
	"net"
	"time"
)

func IsPortAvailable(host string, port int) bool {
	Verbose("Checking if port %d is available on %s", port, host)
	listener, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.ParseIP(host), Port: port})
	if err != nil {
		Verbose("error: %v", err)
		return false
	}

	defer listener.Close()
	return true
}

// FindAvailablePort returns the first free port in [start, start+attempts).
func FindAvailablePort(host string, start, attempts int) (int, error) {
	for port := start; port < start+attempts; port++ {
		if IsPortAvailable(host, port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port in range %d-%d", start, start+attempts-1)
}

// IsPortListening reports whether something accepts TCP connections on host:port.
func IsPortListening(host string, port int, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)), timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
