// Package protocol implements the binary LAN framing spoken by GoodWe-class
// solar inverters.
//
// Every frame shares the same shape: a two-byte 0xAA 0x55 magic header, a
// one-byte command code, a variable-length payload, and a two-byte big-endian
// checksum computed as the arithmetic sum of all preceding bytes. Device
// responses echo the request command with the high bit (0x80) set, which is
// what request/response correlation keys on over connectionless UDP.
//
// Building and parsing:
//
//	req, err := protocol.BuildFrame(protocol.CmdReadRuntimeData, nil)
//	...
//	frame, err := protocol.ParseFrame(datagram)
//	if err != nil {
//	    // malformed frame: surface as a protocol error, not a transport one
//	}
//	if frame.IsResponse() && frame.BaseCommand() == protocol.CmdReadRuntimeData {
//	    decode(frame.Payload)
//	}
//
// The Modbus-TCP variant of the protocol does not use this framing; it is
// handled by the standard MBAP encoding in github.com/goburrow/modbus.
package protocol
