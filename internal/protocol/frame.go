package protocol

import (
	"encoding/binary"
	"fmt"
)

// Command codes used by the inverter's LAN protocol.
const (
	CmdReadDeviceInfo  = 0x01
	CmdReadRuntimeData = 0x02
	CmdWriteSetting    = 0x03

	// CmdDiscover is the reserved broadcast probe command. Inverters answer
	// it with a reply carrying their command port and family identifier.
	CmdDiscover = 0x7F

	// ResponseFlag is set on the command byte of every device response.
	ResponseFlag = 0x80
)

// Frame geometry.
const (
	// Magic header bytes prefixing every frame.
	Sync0 = 0xAA
	Sync1 = 0x55

	HeaderSize   = 3 // sync(2) + command(1)
	ChecksumSize = 2

	// MinFrameSize is the smallest valid frame: header + checksum, no payload.
	MinFrameSize = HeaderSize + ChecksumSize

	// MaxPayloadSize is a safety limit; no known command exceeds it.
	MaxPayloadSize = 1024
)

// Frame is a parsed protocol frame.
type Frame struct {
	Command byte
	Payload []byte
}

// IsResponse reports whether the frame's command byte carries the response flag.
func (f *Frame) IsResponse() bool {
	return f.Command&ResponseFlag != 0
}

// BaseCommand returns the command byte with the response flag cleared.
func (f *Frame) BaseCommand() byte {
	return f.Command &^ ResponseFlag
}

// String returns a debug representation of the frame.
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{Command=%s, Payload=%d bytes}", CommandName(f.Command), len(f.Payload))
}

// BuildFrame constructs a complete frame around the given command and payload.
//
// Frame structure:
//
//	[0]     0xAA          Sync byte
//	[1]     0x55          Sync byte
//	[2]     command       Command code
//	[3+]    payload       Variable-length payload bytes
//	[N:N+2] checksum      Big-endian sum of all preceding bytes
func BuildFrame(command byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	frame := make([]byte, HeaderSize+len(payload)+ChecksumSize)
	frame[0] = Sync0
	frame[1] = Sync1
	frame[2] = command
	copy(frame[HeaderSize:], payload)

	sum := Checksum(frame[:HeaderSize+len(payload)])
	binary.BigEndian.PutUint16(frame[HeaderSize+len(payload):], sum)

	return frame, nil
}

// Checksum computes the 16-bit arithmetic sum of the given bytes.
func Checksum(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}

// ValidateFrame checks a raw frame's structure without extracting the payload.
//
// Validation checks:
//   - minimum frame size
//   - both sync bytes
//   - checksum trailer matches the frame body
func ValidateFrame(frame []byte) error {
	if len(frame) < MinFrameSize {
		return fmt.Errorf("frame too small: %d bytes (minimum %d)", len(frame), MinFrameSize)
	}
	if frame[0] != Sync0 || frame[1] != Sync1 {
		return fmt.Errorf("invalid sync bytes: 0x%02x 0x%02x (expected 0x%02x 0x%02x)",
			frame[0], frame[1], Sync0, Sync1)
	}

	body := frame[:len(frame)-ChecksumSize]
	want := binary.BigEndian.Uint16(frame[len(frame)-ChecksumSize:])
	if got := Checksum(body); got != want {
		return fmt.Errorf("checksum mismatch: computed 0x%04x, frame carries 0x%04x", got, want)
	}

	return nil
}

// ParseFrame validates a raw frame and extracts its command and payload.
// The returned payload is a copy, safe to keep after the read buffer is reused.
func ParseFrame(frame []byte) (*Frame, error) {
	if err := ValidateFrame(frame); err != nil {
		return nil, err
	}

	payload := make([]byte, len(frame)-MinFrameSize)
	copy(payload, frame[HeaderSize:len(frame)-ChecksumSize])

	return &Frame{
		Command: frame[2],
		Payload: payload,
	}, nil
}

// CommandName returns a human-readable name for a command byte.
func CommandName(cmd byte) string {
	suffix := ""
	if cmd&ResponseFlag != 0 {
		suffix = " response"
		cmd &^= ResponseFlag
	}

	switch cmd {
	case CmdReadDeviceInfo:
		return "read-device-info" + suffix
	case CmdReadRuntimeData:
		return "read-runtime-data" + suffix
	case CmdWriteSetting:
		return "write-setting" + suffix
	case CmdDiscover:
		return "discover" + suffix
	default:
		return fmt.Sprintf("unknown(0x%02X)%s", cmd, suffix)
	}
}
