package inverter

import "time"

// Protocol selects the transport variant used to reach the inverter.
type Protocol string

const (
	// ProtocolUDP is the default AA55-framed datagram protocol on port 8899.
	ProtocolUDP Protocol = "udp"
	// ProtocolTCP is the Modbus-TCP variant (MBAP framing).
	ProtocolTCP Protocol = "tcp"
	// ProtocolModbus is an alias for ProtocolTCP kept for configuration
	// compatibility; both select the Modbus-TCP transport.
	ProtocolModbus Protocol = "modbus"
)

// Family identifies an inverter hardware/firmware class. The family
// determines which registers exist and how runtime payloads decode.
type Family string

const (
	// FamilyET is the three-phase hybrid (battery) series.
	FamilyET Family = "ET"
	// FamilyDT is the three-phase grid-tie series without battery.
	FamilyDT Family = "DT"
	// FamilyES is the single-phase hybrid series.
	FamilyES Family = "ES"
)

// Defaults applied by Config.withDefaults.
const (
	// DefaultPort is the inverter's LAN command port.
	DefaultPort = 8899

	// DefaultTimeout bounds a single request/response exchange.
	DefaultTimeout = 1 * time.Second

	// DefaultRetries is the number of retries after the first attempt.
	DefaultRetries = 3

	// MaxBackoff caps the delay between retry attempts.
	MaxBackoff = 8 * time.Second
)

// Config holds the connection parameters for a single inverter.
// It is immutable after the handler is constructed.
type Config struct {
	// Host is the inverter's IP address or hostname.
	Host string

	// Port is the command port (default 8899).
	Port int

	// Protocol selects udp (default), tcp, or modbus.
	Protocol Protocol

	// Timeout bounds a single exchange, including the TCP handshake.
	Timeout time.Duration

	// Retries is how many additional attempts SendCommandWithRetry makes
	// after a failed first attempt.
	Retries int

	// Family tags the inverter's register layout. The wire protocol does
	// not always carry it, so the caller supplies it up front.
	Family Family
}

// withDefaults returns a copy of the config with zero values filled in.
func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Protocol == "" {
		c.Protocol = ProtocolUDP
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retries == 0 {
		c.Retries = DefaultRetries
	}
	return c
}

// Status is a handler state transition, delivered to OnStatus observers.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusRetrying     Status = "retrying"
	StatusError        Status = "error"
)

// Snapshot is a point-in-time view of handler health. It is a pure value;
// reading it has no side effects on the handler.
type Snapshot struct {
	Connected           bool
	ConsecutiveFailures int
	Protocol            Protocol
	Host                string
	Port                int
	LastError           *CommError
}

// DeviceInfo holds the decoded identification block of an inverter.
type DeviceInfo struct {
	ModelName       string
	SerialNumber    string
	FirmwareVersion string
	ArmVersion      string

	// RatedPower is the nameplate power in watts.
	RatedPower int

	// OutputType is the AC topology: 0 single-phase, 1 three-phase
	// four-wire, 2 three-phase three-wire.
	OutputType int

	// Family is merged in from the handler configuration after decoding;
	// the identification response does not always carry it.
	Family Family
}

// OutputTypeString returns a human-readable name for the output topology.
func (d *DeviceInfo) OutputTypeString() string {
	switch d.OutputType {
	case 0:
		return "Single phase"
	case 1:
		return "Three phase (3P4L)"
	case 2:
		return "Three phase (3P3L)"
	default:
		return "Unknown"
	}
}

// RuntimeData maps sensor register names to decoded values. The key set
// depends on the inverter family: three-phase families expose vac2/vac3,
// single-phase families do not, and grid-tie families carry no battery_*
// keys.
type RuntimeData map[string]float64
