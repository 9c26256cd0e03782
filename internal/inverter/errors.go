package inverter

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
	"time"
)

// ErrorCode classifies a communication failure. Codes matching syscall
// names keep those names so log output lines up with OS tooling.
type ErrorCode string

const (
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeConnRefused       ErrorCode = "ECONNREFUSED"
	CodeConnReset         ErrorCode = "ECONNRESET"
	CodeHostUnreachable   ErrorCode = "EHOSTUNREACH"
	CodeReadError         ErrorCode = "READ_ERROR"
	CodeProtocolError     ErrorCode = "PROTOCOL_ERROR"
	CodeUnsupportedFamily ErrorCode = "UNSUPPORTED_FAMILY"
	CodeUnknown           ErrorCode = "UNKNOWN"
)

// Retryable reports whether a failure with this code may succeed on a
// fresh attempt. Malformed frames and configuration-level failures will
// not be fixed by resending the same request.
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeTimeout, CodeConnRefused, CodeConnReset, CodeHostUnreachable, CodeUnknown:
		return true
	case CodeReadError, CodeProtocolError, CodeUnsupportedFamily:
		return false
	default:
		return false
	}
}

// Details is the context snapshot attached to every enriched error.
type Details struct {
	Host     string
	Port     int
	Protocol Protocol
	Family   Family
	Timeout  time.Duration
}

// CommError is an enriched communication error. Once built by Enhance it is
// treated as immutable: enrichment always returns a new value rather than
// mutating an existing one.
type CommError struct {
	Code        ErrorCode
	Message     string
	Details     Details
	Suggestions []string
	Err         error // underlying error, if any
}

// Error implements the error interface. It returns the bare message so
// callers matching on exact text (e.g. "Not connected") see it unchanged.
func (e *CommError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for error chain inspection.
func (e *CommError) Unwrap() error {
	return e.Err
}

// InferCode determines the error code for an arbitrary error.
//
// A code already present on a *CommError is authoritative and is never
// overwritten. Otherwise OS-level error values are checked first, then the
// message text is matched in priority order: timeout, connection refused,
// connection reset, host unreachable, unsupported family, response
// validation. Anything else is UNKNOWN.
func InferCode(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	var ce *CommError
	if errors.As(err, &ce) && ce.Code != "" {
		return ce.Code
	}

	if os.IsTimeout(err) {
		return CodeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return CodeConnRefused
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return CodeConnReset
	}
	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return CodeHostUnreachable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return CodeTimeout
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "econnrefused"):
		return CodeConnRefused
	case strings.Contains(msg, "connection reset") || strings.Contains(msg, "econnreset"):
		return CodeConnReset
	case strings.Contains(msg, "host unreachable") || strings.Contains(msg, "no route to host") ||
		strings.Contains(msg, "ehostunreach"):
		return CodeHostUnreachable
	case strings.Contains(msg, "unsupported family") || strings.Contains(msg, "unknown family"):
		return CodeUnsupportedFamily
	case strings.Contains(msg, "invalid") || strings.Contains(msg, "malformed") ||
		strings.Contains(msg, "checksum") || strings.Contains(msg, "frame"):
		return CodeProtocolError
	default:
		return CodeUnknown
	}
}

// Enhance classifies err and wraps it in a fully-populated *CommError.
//
// It is a pure function: the input error is never modified, and calling it
// on an already-enriched error keeps the existing code (idempotent on Code)
// while refreshing details and suggestions. The returned error always has a
// non-empty Suggestions list.
func Enhance(err error, d Details) *CommError {
	if err == nil {
		return nil
	}

	code := InferCode(err)

	message := err.Error()
	underlying := err
	var ce *CommError
	if errors.As(err, &ce) {
		message = ce.Message
		if ce.Err != nil {
			underlying = ce.Err
		}
	}

	return &CommError{
		Code:        code,
		Message:     message,
		Details:     d,
		Suggestions: suggestionsFor(code, d),
		Err:         underlying,
	}
}

// suggestionsFor produces remediation hints for an error code. Every branch
// interpolates at least one context field verbatim so the hints stay
// actionable for the exact device being spoken to. The switch is exhaustive
// over the taxonomy; unrecognized codes get the generic list, which is
// never empty.
func suggestionsFor(code ErrorCode, d Details) []string {
	switch code {
	case CodeTimeout:
		return []string{
			fmt.Sprintf("No response from %s within %dms", d.Host, d.Timeout.Milliseconds()),
			fmt.Sprintf("Check that the inverter at %s is powered on and its WiFi module is connected", d.Host),
			fmt.Sprintf("Try increasing the timeout above %dms; some firmware responds slowly at night", d.Timeout.Milliseconds()),
			"Verify no firewall is dropping UDP traffic on the command port",
		}
	case CodeConnRefused:
		return []string{
			fmt.Sprintf("Nothing is accepting connections on %s:%d", d.Host, d.Port),
			fmt.Sprintf("Verify the command port (%d) matches the inverter's configuration", d.Port),
			fmt.Sprintf("Confirm the %s protocol is enabled on the device; some models need Modbus-TCP switched on", d.Protocol),
		}
	case CodeConnReset:
		return []string{
			fmt.Sprintf("The connection to %s was reset by the device", d.Host),
			"The inverter's WiFi module may be rebooting; wait a moment and retry",
			"Check whether another monitoring client is holding the device's single connection slot",
		}
	case CodeHostUnreachable:
		return []string{
			fmt.Sprintf("No network route to %s", d.Host),
			fmt.Sprintf("Try pinging the device: ping %s", d.Host),
			"Verify your machine is on the same LAN segment as the inverter",
			"Check the IP address; DHCP may have assigned the inverter a new one",
		}
	case CodeReadError:
		return []string{
			fmt.Sprintf("The device rejected the request over %s", d.Protocol),
			fmt.Sprintf("Confirm the register map matches the %s family; other families use different addresses", d.Family),
			"Check the inverter's firmware version; older firmware exposes fewer registers",
		}
	case CodeProtocolError:
		return []string{
			fmt.Sprintf("Received a malformed response frame from %s:%d", d.Host, d.Port),
			fmt.Sprintf("Verify the configured protocol (%s) matches what the device speaks", d.Protocol),
			"Another device may be answering on the same port; check for address conflicts",
		}
	case CodeUnsupportedFamily:
		return []string{
			fmt.Sprintf("Family %q has no register definitions", d.Family),
			fmt.Sprintf("Supported families: %s, %s, %s", FamilyET, FamilyDT, FamilyES),
			"Check the model label on the inverter; the family code is the letter prefix",
		}
	default:
		return []string{
			fmt.Sprintf("Unexpected failure communicating with %s:%d", d.Host, d.Port),
			"Enable debug logging (GOODWE_LOG_LEVEL=debug) and retry to capture frame dumps",
			"Power-cycle the inverter's WiFi module if the problem persists",
		}
	}
}
