package inverter

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/goburrow/modbus"

	"github.com/solarkit/goodwe-lan/internal/logging"
	"github.com/solarkit/goodwe-lan/internal/protocol"
)

// transport is the socket-level seam between the handler and the two wire
// variants. Exactly one transport is owned by a handler at a time.
type transport interface {
	// Exchange frames command+payload, writes it, and waits for the
	// correlated response payload, bounded by timeout.
	Exchange(command byte, payload []byte, timeout time.Duration) ([]byte, error)
	// RemoteAddr returns the peer address for logging.
	RemoteAddr() string
	Close() error
}

// udpTransport speaks the AA55-framed datagram protocol over a connected
// UDP socket. Connecting the socket means ICMP-derived errors (port
// unreachable, host unreachable) surface as read/write errors instead of
// being silently dropped.
type udpTransport struct {
	conn *net.UDPConn
}

func dialUDP(host string, port int) (*udpTransport, error) {
	raddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", host, err)
	}

	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("failed to open UDP socket: %w", err)
	}

	return &udpTransport{conn: conn}, nil
}

func (t *udpTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

func (t *udpTransport) Exchange(command byte, payload []byte, timeout time.Duration) ([]byte, error) {
	frame, err := protocol.BuildFrame(command, payload)
	if err != nil {
		return nil, &CommError{Code: CodeProtocolError, Message: err.Error(), Err: err}
	}

	deadline := time.Now().Add(timeout)
	if err := t.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	logging.LogFrame("sent", t.RemoteAddr(), frame)
	if _, err := t.conn.Write(frame); err != nil {
		return nil, err
	}

	buf := make([]byte, 4096)
	for {
		n, err := t.conn.Read(buf)
		if err != nil {
			if os.IsTimeout(err) {
				return nil, &CommError{
					Code:    CodeTimeout,
					Message: fmt.Sprintf("request timed out after %dms", timeout.Milliseconds()),
					Err:     err,
				}
			}
			return nil, err
		}

		logging.LogFrame("received", t.RemoteAddr(), buf[:n])

		resp, err := protocol.ParseFrame(buf[:n])
		if err != nil {
			return nil, &CommError{
				Code:    CodeProtocolError,
				Message: fmt.Sprintf("invalid response frame: %v", err),
				Err:     err,
			}
		}

		// Correlation: accept only the response to our command. Stray
		// datagrams (late replies, broadcasts) are dropped and the read
		// continues inside the same deadline.
		if !resp.IsResponse() || resp.BaseCommand() != command {
			logging.Debug("Dropping uncorrelated frame")
			continue
		}

		return resp.Payload, nil
	}
}

func (t *udpTransport) Close() error {
	return t.conn.Close()
}

// modbusTransport speaks the Modbus-TCP variant. The command byte is the
// Modbus function code and the payload is the PDU data; MBAP framing,
// transaction IDs, and response verification come from goburrow/modbus.
type modbusTransport struct {
	handler *modbus.TCPClientHandler
	addr    string
}

func dialModbus(host string, port int, timeout time.Duration) (*modbusTransport, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	h := modbus.NewTCPClientHandler(addr)
	h.Timeout = timeout
	h.Logger = nil

	if err := h.Connect(); err != nil {
		if os.IsTimeout(err) || InferCode(err) == CodeTimeout {
			return nil, &CommError{
				Code:    CodeTimeout,
				Message: fmt.Sprintf("connection to %s timed out after %dms", addr, timeout.Milliseconds()),
				Err:     err,
			}
		}
		return nil, err
	}

	return &modbusTransport{handler: h, addr: addr}, nil
}

func (t *modbusTransport) RemoteAddr() string {
	return t.addr
}

func (t *modbusTransport) Exchange(command byte, payload []byte, timeout time.Duration) ([]byte, error) {
	t.handler.Timeout = timeout

	request := modbus.ProtocolDataUnit{
		FunctionCode: command,
		Data:         payload,
	}

	adu, err := t.handler.Encode(&request)
	if err != nil {
		return nil, &CommError{Code: CodeProtocolError, Message: err.Error(), Err: err}
	}

	logging.LogFrame("sent", t.addr, adu)
	rawResp, err := t.handler.Send(adu)
	if err != nil {
		if os.IsTimeout(err) {
			return nil, &CommError{
				Code:    CodeTimeout,
				Message: fmt.Sprintf("request timed out after %dms", timeout.Milliseconds()),
				Err:     err,
			}
		}
		return nil, err
	}
	logging.LogFrame("received", t.addr, rawResp)

	if err := t.handler.Verify(adu, rawResp); err != nil {
		return nil, &CommError{
			Code:    CodeProtocolError,
			Message: fmt.Sprintf("invalid response frame: %v", err),
			Err:     err,
		}
	}

	response, err := t.handler.Decode(rawResp)
	if err != nil {
		return nil, &CommError{
			Code:    CodeProtocolError,
			Message: fmt.Sprintf("invalid response frame: %v", err),
			Err:     err,
		}
	}

	// A function code with the high bit set is a Modbus exception.
	if response.FunctionCode == command|0x80 {
		exception := byte(0)
		if len(response.Data) > 0 {
			exception = response.Data[0]
		}
		return nil, &CommError{
			Code:    CodeReadError,
			Message: fmt.Sprintf("device returned Modbus exception 0x%02x for function 0x%02x", exception, command),
		}
	}
	if response.FunctionCode != command {
		return nil, &CommError{
			Code:    CodeProtocolError,
			Message: fmt.Sprintf("invalid response frame: function code 0x%02x does not match request 0x%02x", response.FunctionCode, command),
		}
	}

	return response.Data, nil
}

func (t *modbusTransport) Close() error {
	return t.handler.Close()
}
