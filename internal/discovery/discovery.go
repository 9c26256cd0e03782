package discovery

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/solarkit/goodwe-lan/internal/inverter"
	"github.com/solarkit/goodwe-lan/internal/logging"
	"github.com/solarkit/goodwe-lan/internal/protocol"
)

const (
	// DefaultTimeout is the default reply-collection window.
	DefaultTimeout = 5 * time.Second

	// DefaultBroadcastAddr is the probe destination.
	DefaultBroadcastAddr = "255.255.255.255"
)

// Options configures a discovery run. The zero value uses the defaults:
// a 5-second window, the limited broadcast address, and the standard
// inverter command port.
type Options struct {
	// Timeout is the collection window; replies arriving after it elapses
	// are not included.
	Timeout time.Duration

	// BroadcastAddr overrides the probe destination. Useful for directed
	// broadcasts (e.g. "192.168.1.255") and for tests.
	BroadcastAddr string

	// Port is the destination port for the probe.
	Port int
}

func (o Options) withDefaults() Options {
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.BroadcastAddr == "" {
		o.BroadcastAddr = DefaultBroadcastAddr
	}
	if o.Port == 0 {
		o.Port = inverter.DefaultPort
	}
	return o
}

// Discover locates inverters on the local network.
//
// It opens an ephemeral UDP endpoint, sends one broadcast probe frame, and
// collects every validly-framed reply arriving before the timeout elapses.
// This is a fan-in window: any number of devices may answer the single
// probe. Replies from the same IP are de-duplicated, last seen wins.
//
// Zero responders is not an error; the returned slice is simply empty.
// Socket-level failures (including insufficient privilege to broadcast)
// are returned as errors rather than swallowed.
func Discover(opts Options) ([]Record, error) {
	opts = opts.withDefaults()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("failed to open discovery socket: %w", err)
	}
	defer func() { _ = conn.Close() }()

	dest, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(opts.BroadcastAddr, fmt.Sprintf("%d", opts.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve broadcast address %s: %w", opts.BroadcastAddr, err)
	}

	probe, err := protocol.BuildFrame(protocol.CmdDiscover, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build discovery probe: %w", err)
	}

	if _, err := conn.WriteToUDP(probe, dest); err != nil {
		return nil, fmt.Errorf("failed to send discovery probe to %s: %w", dest, err)
	}

	logging.Info("Discovery probe sent",
		zap.String("destination", dest.String()),
		zap.Duration("window", opts.Timeout),
	)

	deadline := time.Now().Add(opts.Timeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	// Order-preserving de-duplication: byIP points into records so a
	// later reply from the same IP replaces the earlier one in place.
	var records []Record
	byIP := make(map[string]int)

	buf := make([]byte, 4096)
	for {
		n, sender, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				break // window closed
			}
			return nil, fmt.Errorf("discovery read failed: %w", err)
		}

		record, ok := parseReply(buf[:n], sender)
		if !ok {
			logging.Debug("Ignoring invalid discovery reply",
				zap.String("sender", sender.String()),
				zap.Int("length", n),
			)
			continue
		}

		if idx, seen := byIP[record.IP]; seen {
			records[idx] = record
		} else {
			byIP[record.IP] = len(records)
			records = append(records, record)
		}
	}

	logging.Info("Discovery finished", zap.Int("devices", len(records)))
	return records, nil
}

// parseReply validates a probe reply and converts it into a Record.
//
// Reply payload layout:
//
//	[0-1]  port     Command port (big-endian uint16)
//	[2+]   family   ASCII family identifier (e.g. "ET")
//
// The IP is taken from the sender address, which is authoritative for
// where the device can actually be reached. Replies without a family
// identifier are invalid and dropped.
func parseReply(raw []byte, sender *net.UDPAddr) (Record, bool) {
	frame, err := protocol.ParseFrame(raw)
	if err != nil {
		return Record{}, false
	}
	if !frame.IsResponse() || frame.BaseCommand() != protocol.CmdDiscover {
		return Record{}, false
	}
	if len(frame.Payload) < 3 {
		return Record{}, false
	}

	port := int(binary.BigEndian.Uint16(frame.Payload[0:2]))
	family := string(frame.Payload[2:])
	if port == 0 || family == "" {
		return Record{}, false
	}

	return Record{
		IP:     sender.IP.String(),
		Port:   port,
		Family: inverter.Family(family),
	}, true
}
