package inverter

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solarkit/goodwe-lan/internal/logging"
	"github.com/solarkit/goodwe-lan/internal/protocol"
)

// Handler owns the connection to a single inverter and drives all
// request/response exchanges against it.
//
// Exactly one handler owns exactly one transport at a time. A handler
// serializes its own exchanges (one in-flight request); independent
// handlers may run concurrently against the same or different devices.
type Handler struct {
	cfg Config

	// sendMu serializes exchanges so a handler has at most one in-flight
	// request. stateMu protects the fields below and is never held across
	// network I/O, so GetStatus stays responsive during an exchange.
	sendMu  sync.Mutex
	stateMu sync.Mutex

	tr                  transport
	connected           bool
	consecutiveFailures int
	lastError           *CommError

	obsMu      sync.Mutex
	statusObrs []func(Status)
	errorObrs  []func(error)
}

// NewHandler creates a handler for the given connection parameters.
// Zero-valued fields are filled with defaults: port 8899, udp protocol,
// 1s timeout, 3 retries. The configuration is immutable afterwards.
func NewHandler(cfg Config) *Handler {
	return &Handler{cfg: cfg.withDefaults()}
}

// Config returns the handler's immutable configuration.
func (h *Handler) Config() Config {
	return h.cfg
}

// details snapshots the context attached to enriched errors.
func (h *Handler) details() Details {
	return Details{
		Host:     h.cfg.Host,
		Port:     h.cfg.Port,
		Protocol: h.cfg.Protocol,
		Family:   h.cfg.Family,
		Timeout:  h.cfg.Timeout,
	}
}

// OnStatus registers an observer for status transitions
// (connecting, connected, disconnected, retrying, error).
func (h *Handler) OnStatus(fn func(Status)) {
	h.obsMu.Lock()
	defer h.obsMu.Unlock()
	h.statusObrs = append(h.statusObrs, fn)
}

// OnError registers an observer for transport-level failures not directly
// tied to the return value of an in-flight call.
func (h *Handler) OnError(fn func(error)) {
	h.obsMu.Lock()
	defer h.obsMu.Unlock()
	h.errorObrs = append(h.errorObrs, fn)
}

func (h *Handler) emitStatus(s Status) {
	h.obsMu.Lock()
	observers := append(([]func(Status))(nil), h.statusObrs...)
	h.obsMu.Unlock()
	for _, fn := range observers {
		fn(s)
	}
}

func (h *Handler) emitError(err error) {
	h.obsMu.Lock()
	observers := append(([]func(error))(nil), h.errorObrs...)
	h.obsMu.Unlock()
	for _, fn := range observers {
		fn(err)
	}
}

// Connect opens the transport. It is idempotent: a second call while
// connected is a no-op success.
//
// Unsupported protocol values and a missing host are rejected
// synchronously, before any socket is opened. For UDP, "connected" means
// the socket is allocated (the protocol has no handshake); for the
// Modbus-TCP variant the TCP connection is bounded by the configured
// timeout.
func (h *Handler) Connect() error {
	h.stateMu.Lock()
	if h.connected {
		h.stateMu.Unlock()
		return nil
	}
	h.stateMu.Unlock()

	switch h.cfg.Protocol {
	case ProtocolUDP, ProtocolTCP, ProtocolModbus:
	default:
		return fmt.Errorf("unsupported protocol: %q (expected udp, tcp, or modbus)", h.cfg.Protocol)
	}
	if h.cfg.Host == "" {
		return errors.New("host is required")
	}

	h.emitStatus(StatusConnecting)
	logging.Info("Connecting",
		zap.String("host", h.cfg.Host),
		zap.Int("port", h.cfg.Port),
		zap.String("protocol", string(h.cfg.Protocol)),
	)

	var tr transport
	var err error
	switch h.cfg.Protocol {
	case ProtocolUDP:
		tr, err = dialUDP(h.cfg.Host, h.cfg.Port)
	default:
		tr, err = dialModbus(h.cfg.Host, h.cfg.Port, h.cfg.Timeout)
	}
	if err != nil {
		enriched := Enhance(err, h.details())
		h.stateMu.Lock()
		h.lastError = enriched
		h.stateMu.Unlock()
		h.emitStatus(StatusError)
		h.emitError(enriched)
		return enriched
	}

	h.stateMu.Lock()
	h.tr = tr
	h.connected = true
	h.stateMu.Unlock()

	h.emitStatus(StatusConnected)
	logging.LogConnection(tr.RemoteAddr(), string(h.cfg.Protocol), "connected")
	return nil
}

// Disconnect releases the transport. It is idempotent and safe to call on
// a never-connected handler; it always leaves the handler disconnected
// with no transport. Disconnecting during an in-flight exchange causes
// that exchange to fail once the closed socket reports it.
func (h *Handler) Disconnect() error {
	h.stateMu.Lock()
	tr := h.tr
	h.tr = nil
	h.connected = false
	h.stateMu.Unlock()

	if tr != nil {
		if err := tr.Close(); err != nil {
			h.emitError(err)
		}
		logging.LogConnection(tr.RemoteAddr(), string(h.cfg.Protocol), "disconnected")
	}

	h.emitStatus(StatusDisconnected)
	return nil
}

// SendCommand performs a single framed exchange: write the request, wait
// for the correlated response, bounded by the configured timeout.
//
// It requires a connected handler and fails with "Not connected" before
// any I/O otherwise. Every failure increments the consecutive-failure
// counter and records the enriched error; every success resets both.
func (h *Handler) SendCommand(command byte, payload []byte) ([]byte, error) {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	return h.sendLocked(command, payload)
}

func (h *Handler) sendLocked(command byte, payload []byte) ([]byte, error) {
	h.stateMu.Lock()
	tr := h.tr
	connected := h.connected
	h.stateMu.Unlock()

	if !connected || tr == nil {
		return nil, h.recordFailure(errors.New("Not connected"))
	}

	start := time.Now()
	resp, err := tr.Exchange(command, payload, h.cfg.Timeout)
	logging.LogExchange(tr.RemoteAddr(), protocol.CommandName(command), time.Since(start), err)

	if err != nil {
		return nil, h.recordFailure(err)
	}

	h.stateMu.Lock()
	h.consecutiveFailures = 0
	h.lastError = nil
	h.stateMu.Unlock()

	return resp, nil
}

// recordFailure enriches err, bumps the failure counter by exactly one,
// and records the enriched error as lastError.
func (h *Handler) recordFailure(err error) *CommError {
	enriched := Enhance(err, h.details())

	h.stateMu.Lock()
	h.consecutiveFailures++
	h.lastError = enriched
	h.stateMu.Unlock()

	h.emitStatus(StatusError)
	return enriched
}

// SendCommandWithRetry calls SendCommand up to Retries+1 times.
//
// The first success is returned immediately. Between attempts the handler
// waits a backoff delay and emits a "retrying" status (never before the
// first attempt). The delay starts at one timeout interval and doubles per
// retry, capped at MaxBackoff, so a fully failing run always takes longer
// than one timeout interval of wall-clock time. Non-retryable failures
// (malformed frames, unsupported family, device exceptions) short-circuit
// the loop. The final error is the last attempt's enriched error.
func (h *Handler) SendCommandWithRetry(command byte, payload []byte) ([]byte, error) {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	attempts := h.cfg.Retries + 1
	backoff := h.cfg.Timeout

	var lastErr *CommError
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
			if backoff > MaxBackoff {
				backoff = MaxBackoff
			}
			h.emitStatus(StatusRetrying)
			logging.Warn("Retrying command",
				zap.String("command", protocol.CommandName(command)),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", attempts),
			)
		}

		resp, err := h.sendLocked(command, payload)
		if err == nil {
			return resp, nil
		}

		// sendLocked always returns *CommError.
		lastErr = err.(*CommError)
		if !lastErr.Code.Retryable() {
			break
		}
		// A caller error, not a transport failure; retrying cannot help.
		if lastErr.Message == "Not connected" {
			break
		}
	}

	return nil, lastErr
}

// GetStatus returns a pure snapshot of handler health. It never blocks on
// an in-flight exchange and has no side effects.
func (h *Handler) GetStatus() Snapshot {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	return Snapshot{
		Connected:           h.connected,
		ConsecutiveFailures: h.consecutiveFailures,
		Protocol:            h.cfg.Protocol,
		Host:                h.cfg.Host,
		Port:                h.cfg.Port,
		LastError:           h.lastError,
	}
}
