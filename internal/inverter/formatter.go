package inverter

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// OutputMode selects the shape FormatOutput produces.
type OutputMode string

const (
	// ModeFlat returns the decoded mapping unchanged.
	ModeFlat OutputMode = "flat"
	// ModeCategorized groups registers into pv/battery/grid/energy/status buckets.
	ModeCategorized OutputMode = "categorized"
	// ModeArray converts the mapping into an ordered {id, value} sequence.
	ModeArray OutputMode = "array"
)

// Reading is one register in array-shaped output.
type Reading struct {
	ID    string  `json:"id"`
	Value float64 `json:"value"`
}

// FormatOutput shapes decoded runtime data for consumers that want
// something other than a flat map. The returned value is RuntimeData for
// flat mode, map[string]RuntimeData for categorized mode, and []Reading
// for array mode.
func FormatOutput(data RuntimeData, mode OutputMode) (interface{}, error) {
	switch mode {
	case ModeFlat, "":
		return data, nil
	case ModeCategorized:
		return Categorize(data), nil
	case ModeArray:
		return AsArray(data), nil
	default:
		return nil, fmt.Errorf("unknown output mode: %q", mode)
	}
}

// Categorize groups register names into fixed buckets:
//
//	pv       vpv*/ipv*/ppv
//	battery  battery_*
//	grid     vac*/iac*/fac*/pac
//	energy   e_*/h_*
//	status   everything else
func Categorize(data RuntimeData) map[string]RuntimeData {
	buckets := map[string]RuntimeData{
		"pv":      {},
		"battery": {},
		"grid":    {},
		"energy":  {},
		"status":  {},
	}

	for name, value := range data {
		buckets[bucketFor(name)][name] = value
	}
	return buckets
}

func bucketFor(name string) string {
	switch {
	case strings.HasPrefix(name, "vpv") || strings.HasPrefix(name, "ipv") || strings.HasPrefix(name, "ppv"):
		return "pv"
	case strings.HasPrefix(name, "battery_"):
		return "battery"
	case strings.HasPrefix(name, "vac") || strings.HasPrefix(name, "iac") ||
		strings.HasPrefix(name, "fac") || name == "pac":
		return "grid"
	case strings.HasPrefix(name, "e_") || strings.HasPrefix(name, "h_"):
		return "energy"
	default:
		return "status"
	}
}

// AsArray converts the mapping into an ordered sequence of readings,
// sorted by register name so the order is deterministic.
func AsArray(data RuntimeData) []Reading {
	readings := make([]Reading, 0, len(data))
	for name, value := range data {
		readings = append(readings, Reading{ID: name, Value: value})
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].ID < readings[j].ID })
	return readings
}

// ErrorResponse wraps a failed command for callers that consume results
// rather than errors (pipeline integrations, JSON output).
type ErrorResponse struct {
	Success bool        `json:"success"`
	Command string      `json:"command"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail is the error portion of an ErrorResponse.
type ErrorDetail struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// NewErrorResponse builds an ErrorResponse from a failed command. Enriched
// errors contribute their code and suggestions; anything else is UNKNOWN.
func NewErrorResponse(err error, command string) ErrorResponse {
	detail := ErrorDetail{Code: CodeUnknown}
	if err != nil {
		detail.Message = err.Error()
	}

	var ce *CommError
	if errors.As(err, &ce) {
		if ce.Code != "" {
			detail.Code = ce.Code
		}
		detail.Message = ce.Message
		detail.Suggestions = ce.Suggestions
	}

	return ErrorResponse{
		Success: false,
		Command: command,
		Error:   detail,
	}
}
