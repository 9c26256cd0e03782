package inverter

import (
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/solarkit/goodwe-lan/internal/protocol"
)

// fakeDevice is a loopback UDP responder standing in for an inverter.
// respond receives each request frame and returns zero or more datagrams
// to send back; returning nothing simulates a silent device.
type fakeDevice struct {
	t       *testing.T
	conn    *net.UDPConn
	mu      sync.Mutex
	hits    int
	respond func(hit int, cmd byte, payload []byte) [][]byte
}

func startFakeDevice(t *testing.T, respond func(hit int, cmd byte, payload []byte) [][]byte) (*fakeDevice, int) {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("failed to start fake device: %v", err)
	}

	d := &fakeDevice{t: t, conn: conn, respond: respond}
	t.Cleanup(func() { _ = conn.Close() })

	go d.serve()

	return d, conn.LocalAddr().(*net.UDPAddr).Port
}

func (d *fakeDevice) serve() {
	buf := make([]byte, 4096)
	for {
		n, sender, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			return // closed
		}

		frame, err := protocol.ParseFrame(buf[:n])
		if err != nil {
			continue
		}

		d.mu.Lock()
		d.hits++
		hit := d.hits
		d.mu.Unlock()

		for _, reply := range d.respond(hit, frame.Command, frame.Payload) {
			_, _ = d.conn.WriteToUDP(reply, sender)
		}
	}
}

func (d *fakeDevice) requestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hits
}

// okReply builds a valid response frame for a request command.
func okReply(t *testing.T, cmd byte, payload []byte) []byte {
	t.Helper()
	frame, err := protocol.BuildFrame(cmd|protocol.ResponseFlag, payload)
	if err != nil {
		t.Fatalf("failed to build reply: %v", err)
	}
	return frame
}

// statusRecorder collects emitted status transitions.
type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *statusRecorder) record(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *statusRecorder) all() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func (r *statusRecorder) count(want Status) int {
	n := 0
	for _, s := range r.all() {
		if s == want {
			n++
		}
	}
	return n
}

func TestNewHandlerDefaults(t *testing.T) {
	h := NewHandler(Config{Host: "192.168.1.100"})

	cfg := h.Config()
	if cfg.Protocol != ProtocolUDP {
		t.Errorf("Protocol = %s, want %s", cfg.Protocol, ProtocolUDP)
	}
	if cfg.Port != 8899 {
		t.Errorf("Port = %d, want 8899", cfg.Port)
	}
	if cfg.Timeout != 1*time.Second {
		t.Errorf("Timeout = %v, want 1s", cfg.Timeout)
	}
	if cfg.Retries != 3 {
		t.Errorf("Retries = %d, want 3", cfg.Retries)
	}

	snap := h.GetStatus()
	if snap.Connected {
		t.Error("Connected = true for a fresh handler")
	}
	if snap.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", snap.ConsecutiveFailures)
	}
	if snap.LastError != nil {
		t.Errorf("LastError = %v, want nil", snap.LastError)
	}
}

func TestConnectRejectsUnsupportedProtocol(t *testing.T) {
	rec := &statusRecorder{}
	h := NewHandler(Config{Host: "127.0.0.1", Protocol: "carrier-pigeon"})
	h.OnStatus(rec.record)

	err := h.Connect()
	if err == nil {
		t.Fatal("expected error for unsupported protocol")
	}
	if got := err.Error(); !strings.Contains(got, "carrier-pigeon") {
		t.Errorf("error %q does not name the bad protocol", got)
	}

	// Rejected before any socket work: no status transitions at all.
	if statuses := rec.all(); len(statuses) != 0 {
		t.Errorf("statuses = %v, want none", statuses)
	}
	if h.GetStatus().Connected {
		t.Error("handler claims connected after rejected Connect")
	}
}

func TestConnectRequiresHost(t *testing.T) {
	h := NewHandler(Config{})
	if err := h.Connect(); err == nil {
		t.Fatal("expected error for missing host")
	}
}

func TestConnectDisconnectLifecycle(t *testing.T) {
	_, port := startFakeDevice(t, func(hit int, cmd byte, payload []byte) [][]byte {
		return nil
	})

	rec := &statusRecorder{}
	h := NewHandler(Config{Host: "127.0.0.1", Port: port})
	h.OnStatus(rec.record)

	if err := h.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !h.GetStatus().Connected {
		t.Error("Connected = false after Connect")
	}

	// Second Connect is a no-op success.
	if err := h.Connect(); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}

	if err := h.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if h.GetStatus().Connected {
		t.Error("Connected = true after Disconnect")
	}

	// Disconnect is idempotent.
	if err := h.Disconnect(); err != nil {
		t.Fatalf("second Disconnect() error = %v", err)
	}

	want := []Status{StatusConnecting, StatusConnected, StatusDisconnected, StatusDisconnected}
	got := rec.all()
	if len(got) != len(want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("statuses[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSendCommandNotConnected(t *testing.T) {
	h := NewHandler(Config{Host: "127.0.0.1"})

	_, err := h.SendCommand(protocol.CmdReadRuntimeData, nil)
	if err == nil {
		t.Fatal("expected error on never-connected handler")
	}
	if err.Error() != "Not connected" {
		t.Errorf("error = %q, want %q", err.Error(), "Not connected")
	}

	snap := h.GetStatus()
	if snap.ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", snap.ConsecutiveFailures)
	}
	if snap.LastError == nil {
		t.Error("LastError not recorded")
	}
}

func TestSendCommandRoundTrip(t *testing.T) {
	_, port := startFakeDevice(t, func(hit int, cmd byte, payload []byte) [][]byte {
		return [][]byte{okReply(t, cmd, []byte{0x99, 0xAB})}
	})

	h := NewHandler(Config{Host: "127.0.0.1", Port: port, Timeout: 500 * time.Millisecond})
	if err := h.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer h.Disconnect()

	resp, err := h.SendCommand(protocol.CmdReadRuntimeData, nil)
	if err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	if len(resp) != 2 || resp[0] != 0x99 || resp[1] != 0xAB {
		t.Errorf("response = % x, want 99 ab", resp)
	}

	snap := h.GetStatus()
	if snap.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", snap.ConsecutiveFailures)
	}
	if snap.LastError != nil {
		t.Errorf("LastError = %v, want nil", snap.LastError)
	}
}

func TestSendCommandTimeout(t *testing.T) {
	silent, port := startFakeDevice(t, func(hit int, cmd byte, payload []byte) [][]byte {
		return nil // never answer
	})

	timeout := 60 * time.Millisecond
	h := NewHandler(Config{Host: "127.0.0.1", Port: port, Timeout: timeout})
	if err := h.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer h.Disconnect()

	start := time.Now()
	_, err := h.SendCommand(protocol.CmdReadRuntimeData, nil)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected timeout error")
	}
	var ce *CommError
	if !errors.As(err, &ce) {
		t.Fatalf("error is %T, want *CommError", err)
	}
	if ce.Code != CodeTimeout {
		t.Errorf("Code = %s, want %s", ce.Code, CodeTimeout)
	}
	if elapsed < timeout {
		t.Errorf("returned after %v, before the %v timeout", elapsed, timeout)
	}
	if got := h.GetStatus().ConsecutiveFailures; got != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", got)
	}
	if silent.requestCount() != 1 {
		t.Errorf("request count = %d, want 1", silent.requestCount())
	}
}

func TestConsecutiveFailuresResetOnSuccess(t *testing.T) {
	device, port := startFakeDevice(t, func(hit int, cmd byte, payload []byte) [][]byte {
		if hit <= 2 {
			return nil // first two requests go unanswered
		}
		return [][]byte{okReply(t, cmd, []byte{0x01})}
	})

	h := NewHandler(Config{Host: "127.0.0.1", Port: port, Timeout: 50 * time.Millisecond})
	if err := h.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer h.Disconnect()

	for i := 1; i <= 2; i++ {
		if _, err := h.SendCommand(protocol.CmdReadRuntimeData, nil); err == nil {
			t.Fatalf("attempt %d unexpectedly succeeded", i)
		}
		if got := h.GetStatus().ConsecutiveFailures; got != i {
			t.Errorf("ConsecutiveFailures after attempt %d = %d, want %d", i, got, i)
		}
	}

	if _, err := h.SendCommand(protocol.CmdReadRuntimeData, nil); err != nil {
		t.Fatalf("third attempt failed: %v", err)
	}
	if got := h.GetStatus().ConsecutiveFailures; got != 0 {
		t.Errorf("ConsecutiveFailures after success = %d, want 0", got)
	}
	if device.requestCount() != 3 {
		t.Errorf("request count = %d, want 3", device.requestCount())
	}
}

func TestSendCommandRejectsMalformedFrame(t *testing.T) {
	device, port := startFakeDevice(t, func(hit int, cmd byte, payload []byte) [][]byte {
		reply := okReply(t, cmd, []byte{0x01})
		reply[len(reply)-1]++ // break the checksum
		return [][]byte{reply}
	})

	h := NewHandler(Config{Host: "127.0.0.1", Port: port, Timeout: 200 * time.Millisecond, Retries: 3})
	if err := h.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer h.Disconnect()

	_, err := h.SendCommandWithRetry(protocol.CmdReadRuntimeData, nil)
	if err == nil {
		t.Fatal("expected protocol error")
	}
	var ce *CommError
	if !errors.As(err, &ce) {
		t.Fatalf("error is %T, want *CommError", err)
	}
	if ce.Code != CodeProtocolError {
		t.Errorf("Code = %s, want %s", ce.Code, CodeProtocolError)
	}
	if len(ce.Suggestions) == 0 {
		t.Error("enriched error has no suggestions")
	}

	// Malformed responses are not retried; resending cannot fix them.
	if device.requestCount() != 1 {
		t.Errorf("request count = %d, want 1", device.requestCount())
	}
}

func TestSendCommandIgnoresUncorrelatedFrames(t *testing.T) {
	_, port := startFakeDevice(t, func(hit int, cmd byte, payload []byte) [][]byte {
		return [][]byte{
			okReply(t, protocol.CmdDiscover, []byte{0x00}), // stray reply to someone else's probe
			okReply(t, cmd, []byte{0x42}),                  // the real answer
		}
	})

	h := NewHandler(Config{Host: "127.0.0.1", Port: port, Timeout: 500 * time.Millisecond})
	if err := h.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer h.Disconnect()

	resp, err := h.SendCommand(protocol.CmdReadRuntimeData, nil)
	if err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	if len(resp) != 1 || resp[0] != 0x42 {
		t.Errorf("response = % x, want 42", resp)
	}
}

func TestRetryReturnsFirstSuccess(t *testing.T) {
	device, port := startFakeDevice(t, func(hit int, cmd byte, payload []byte) [][]byte {
		if hit == 1 {
			return nil // fail the first attempt
		}
		return [][]byte{okReply(t, cmd, []byte{0x07})}
	})

	rec := &statusRecorder{}
	timeout := 50 * time.Millisecond
	h := NewHandler(Config{Host: "127.0.0.1", Port: port, Timeout: timeout, Retries: 3})
	h.OnStatus(rec.record)
	if err := h.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer h.Disconnect()

	start := time.Now()
	resp, err := h.SendCommandWithRetry(protocol.CmdReadRuntimeData, nil)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("SendCommandWithRetry() error = %v", err)
	}
	if len(resp) != 1 || resp[0] != 0x07 {
		t.Errorf("response = % x, want 07", resp)
	}

	// Exactly two underlying attempts: the failure and the success.
	if device.requestCount() != 2 {
		t.Errorf("request count = %d, want 2", device.requestCount())
	}
	if rec.count(StatusRetrying) != 1 {
		t.Errorf("retrying events = %d, want 1", rec.count(StatusRetrying))
	}
	if elapsed < timeout {
		t.Errorf("elapsed = %v, want more than one timeout interval (%v)", elapsed, timeout)
	}
	if got := h.GetStatus().ConsecutiveFailures; got != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", got)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	device, port := startFakeDevice(t, func(hit int, cmd byte, payload []byte) [][]byte {
		return nil // always fail
	})

	rec := &statusRecorder{}
	timeout := 40 * time.Millisecond
	h := NewHandler(Config{Host: "127.0.0.1", Port: port, Timeout: timeout, Retries: 2})
	h.OnStatus(rec.record)
	if err := h.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer h.Disconnect()

	start := time.Now()
	_, err := h.SendCommandWithRetry(protocol.CmdReadRuntimeData, nil)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected failure after exhausted retries")
	}
	var ce *CommError
	if !errors.As(err, &ce) {
		t.Fatalf("error is %T, want *CommError", err)
	}
	if ce.Code != CodeTimeout {
		t.Errorf("Code = %s, want %s", ce.Code, CodeTimeout)
	}

	// retries=2 means at most 3 underlying attempts.
	if device.requestCount() != 3 {
		t.Errorf("request count = %d, want 3", device.requestCount())
	}
	if rec.count(StatusRetrying) != 2 {
		t.Errorf("retrying events = %d, want 2", rec.count(StatusRetrying))
	}
	if elapsed < timeout {
		t.Errorf("elapsed = %v, want more than one timeout interval (%v)", elapsed, timeout)
	}
	if got := h.GetStatus().ConsecutiveFailures; got != 3 {
		t.Errorf("ConsecutiveFailures = %d, want 3", got)
	}
}

func TestRetryDoesNotLoopWhenNotConnected(t *testing.T) {
	h := NewHandler(Config{Host: "127.0.0.1", Retries: 3, Timeout: 30 * time.Millisecond})

	start := time.Now()
	_, err := h.SendCommandWithRetry(protocol.CmdReadRuntimeData, nil)
	elapsed := time.Since(start)

	if err == nil || err.Error() != "Not connected" {
		t.Fatalf("error = %v, want Not connected", err)
	}
	// A caller error must fail fast, not burn through the backoff schedule.
	if elapsed > 20*time.Millisecond {
		t.Errorf("elapsed = %v, want immediate failure", elapsed)
	}
}
