package discovery

import (
	"fmt"

	"github.com/solarkit/goodwe-lan/internal/inverter"
)

// Record describes one inverter that answered the discovery probe.
type Record struct {
	// IP is the IPv4 address the reply came from.
	IP string

	// Port is the device's command port, as reported in the reply.
	Port int

	// Family is the inverter family identifier carried in the reply.
	Family inverter.Family
}

// String returns a human-readable representation of the record.
func (r Record) String() string {
	return fmt.Sprintf("%s inverter at %s:%d", r.Family, r.IP, r.Port)
}

// HandlerConfig builds a connection configuration for the discovered
// device, suitable for inverter.NewHandler.
func (r Record) HandlerConfig() inverter.Config {
	return inverter.Config{
		Host:     r.IP,
		Port:     r.Port,
		Protocol: inverter.ProtocolUDP,
		Family:   r.Family,
	}
}
