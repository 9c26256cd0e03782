package inverter

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/solarkit/goodwe-lan/internal/protocol"
)

// registerDef describes one sensor register inside a runtime payload.
// Offsets are byte offsets into the payload; all values are big-endian.
type registerDef struct {
	name   string
	offset int
	words  int // 1 = uint16, 2 = uint32
	scale  float64
	signed bool
}

// Runtime register layouts per family. Three-phase families (ET, DT) carry
// the vac2/vac3 (and iac/fac) phase registers; the single-phase ES does
// not. Grid-tie DT has no battery block.
var runtimeTables = map[Family][]registerDef{
	FamilyET: {
		{name: "vpv1", offset: 0, words: 1, scale: 10},   // 0.1 V
		{name: "ipv1", offset: 2, words: 1, scale: 10},   // 0.1 A
		{name: "vpv2", offset: 4, words: 1, scale: 10},   // 0.1 V
		{name: "ipv2", offset: 6, words: 1, scale: 10},   // 0.1 A
		{name: "ppv", offset: 8, words: 2, scale: 1},     // W
		{name: "vac1", offset: 12, words: 1, scale: 10},  // 0.1 V
		{name: "vac2", offset: 14, words: 1, scale: 10},  // 0.1 V
		{name: "vac3", offset: 16, words: 1, scale: 10},  // 0.1 V
		{name: "iac1", offset: 18, words: 1, scale: 10},  // 0.1 A
		{name: "iac2", offset: 20, words: 1, scale: 10},  // 0.1 A
		{name: "iac3", offset: 22, words: 1, scale: 10},  // 0.1 A
		{name: "fac1", offset: 24, words: 1, scale: 100}, // 0.01 Hz
		{name: "fac2", offset: 26, words: 1, scale: 100}, // 0.01 Hz
		{name: "fac3", offset: 28, words: 1, scale: 100}, // 0.01 Hz
		{name: "pac", offset: 30, words: 2, scale: 1, signed: true}, // W
		{name: "work_mode", offset: 34, words: 1, scale: 1},
		{name: "temperature", offset: 36, words: 1, scale: 10, signed: true}, // 0.1 degC
		{name: "e_day", offset: 38, words: 1, scale: 10},                     // 0.1 kWh
		{name: "e_total", offset: 40, words: 2, scale: 10},                   // 0.1 kWh
		{name: "h_total", offset: 44, words: 2, scale: 1},                    // hours
		{name: "battery_voltage", offset: 48, words: 1, scale: 10},           // 0.1 V
		{name: "battery_current", offset: 50, words: 1, scale: 10, signed: true},
		{name: "battery_power", offset: 52, words: 2, scale: 1, signed: true}, // W
		{name: "battery_soc", offset: 56, words: 1, scale: 1},                 // %
		{name: "battery_temperature", offset: 58, words: 1, scale: 10, signed: true},
	},
	FamilyDT: {
		{name: "vpv1", offset: 0, words: 1, scale: 10},
		{name: "ipv1", offset: 2, words: 1, scale: 10},
		{name: "vpv2", offset: 4, words: 1, scale: 10},
		{name: "ipv2", offset: 6, words: 1, scale: 10},
		{name: "ppv", offset: 8, words: 2, scale: 1},
		{name: "vac1", offset: 12, words: 1, scale: 10},
		{name: "vac2", offset: 14, words: 1, scale: 10},
		{name: "vac3", offset: 16, words: 1, scale: 10},
		{name: "iac1", offset: 18, words: 1, scale: 10},
		{name: "iac2", offset: 20, words: 1, scale: 10},
		{name: "iac3", offset: 22, words: 1, scale: 10},
		{name: "fac1", offset: 24, words: 1, scale: 100},
		{name: "fac2", offset: 26, words: 1, scale: 100},
		{name: "fac3", offset: 28, words: 1, scale: 100},
		{name: "pac", offset: 30, words: 2, scale: 1, signed: true},
		{name: "work_mode", offset: 34, words: 1, scale: 1},
		{name: "temperature", offset: 36, words: 1, scale: 10, signed: true},
		{name: "e_day", offset: 38, words: 1, scale: 10},
		{name: "e_total", offset: 40, words: 2, scale: 10},
		{name: "h_total", offset: 44, words: 2, scale: 1},
	},
	FamilyES: {
		{name: "vpv1", offset: 0, words: 1, scale: 10},
		{name: "ipv1", offset: 2, words: 1, scale: 10},
		{name: "vpv2", offset: 4, words: 1, scale: 10},
		{name: "ipv2", offset: 6, words: 1, scale: 10},
		{name: "ppv", offset: 8, words: 2, scale: 1},
		{name: "vac1", offset: 12, words: 1, scale: 10},
		{name: "iac1", offset: 14, words: 1, scale: 10},
		{name: "fac1", offset: 16, words: 1, scale: 100},
		{name: "pac", offset: 18, words: 2, scale: 1, signed: true},
		{name: "work_mode", offset: 22, words: 1, scale: 1},
		{name: "temperature", offset: 24, words: 1, scale: 10, signed: true},
		{name: "e_day", offset: 26, words: 1, scale: 10},
		{name: "e_total", offset: 28, words: 2, scale: 10},
		{name: "h_total", offset: 32, words: 2, scale: 1},
		{name: "battery_voltage", offset: 36, words: 1, scale: 10},
		{name: "battery_current", offset: 38, words: 1, scale: 10, signed: true},
		{name: "battery_soc", offset: 40, words: 1, scale: 1},
		{name: "battery_temperature", offset: 42, words: 1, scale: 10, signed: true},
	},
}

// Device info payload geometry (shared across families).
const (
	infoModelNameStart = 0
	infoModelNameEnd   = 10
	infoSerialStart    = 10
	infoSerialEnd      = 26
	infoDSPVersion     = 26
	infoARMVersion     = 28
	infoRatedPower     = 30
	infoOutputType     = 32
	infoMinLength      = 34
)

// Modbus register geometry for the MBAP variant. Addresses follow the
// hybrid-series holding register map; function 0x03 reads them.
const (
	modbusFnReadHolding    = 0x03
	modbusDeviceInfoAddr   = 35000
	modbusDeviceInfoQty    = infoMinLength / 2
	modbusRuntimeAddr      = 35100
)

// registerTable returns the runtime decode table for a family.
func registerTable(family Family) ([]registerDef, error) {
	table, ok := runtimeTables[family]
	if !ok {
		return nil, fmt.Errorf("unsupported family: %q", family)
	}
	return table, nil
}

// payloadLength returns the minimum payload size a table requires.
func payloadLength(table []registerDef) int {
	max := 0
	for _, def := range table {
		end := def.offset + def.words*2
		if end > max {
			max = end
		}
	}
	return max
}

// decodeRuntime decodes a runtime payload against a register table.
func decodeRuntime(payload []byte, table []registerDef) (RuntimeData, error) {
	if need := payloadLength(table); len(payload) < need {
		return nil, fmt.Errorf("invalid runtime payload: %d bytes (need %d)", len(payload), need)
	}

	data := make(RuntimeData, len(table))
	for _, def := range table {
		var raw float64
		switch def.words {
		case 1:
			v := binary.BigEndian.Uint16(payload[def.offset:])
			if def.signed {
				raw = float64(int16(v))
			} else {
				raw = float64(v)
			}
		case 2:
			v := binary.BigEndian.Uint32(payload[def.offset:])
			if def.signed {
				raw = float64(int32(v))
			} else {
				raw = float64(v)
			}
		}
		data[def.name] = raw / def.scale
	}
	return data, nil
}

// decodeDeviceInfo decodes an identification payload.
func decodeDeviceInfo(payload []byte) (*DeviceInfo, error) {
	if len(payload) < infoMinLength {
		return nil, fmt.Errorf("invalid device info payload: %d bytes (need %d)", len(payload), infoMinLength)
	}

	dsp := binary.BigEndian.Uint16(payload[infoDSPVersion:])
	arm := binary.BigEndian.Uint16(payload[infoARMVersion:])

	return &DeviceInfo{
		ModelName:       asciiField(payload[infoModelNameStart:infoModelNameEnd]),
		SerialNumber:    asciiField(payload[infoSerialStart:infoSerialEnd]),
		FirmwareVersion: fmt.Sprintf("%d.%02d", dsp>>8, dsp&0xFF),
		ArmVersion:      fmt.Sprintf("%d.%02d", arm>>8, arm&0xFF),
		RatedPower:      int(binary.BigEndian.Uint16(payload[infoRatedPower:])),
		OutputType:      int(binary.BigEndian.Uint16(payload[infoOutputType:])),
	}, nil
}

// asciiField trims NUL padding and whitespace from a fixed-width field.
func asciiField(b []byte) string {
	return strings.TrimSpace(strings.TrimRight(string(b), "\x00"))
}

// ReadDeviceInfo reads and decodes the identification block, retrying per
// the handler configuration. The configured family is merged into the
// result; the wire response does not always carry it.
func (h *Handler) ReadDeviceInfo() (*DeviceInfo, error) {
	payload, err := h.readRegisters(protocol.CmdReadDeviceInfo, modbusDeviceInfoAddr, modbusDeviceInfoQty)
	if err != nil {
		return nil, err
	}

	info, err := decodeDeviceInfo(payload)
	if err != nil {
		return nil, Enhance(&CommError{Code: CodeProtocolError, Message: err.Error(), Err: err}, h.details())
	}

	info.Family = h.cfg.Family
	return info, nil
}

// ReadRuntimeData reads and decodes the family-dependent sensor block,
// retrying per the handler configuration.
func (h *Handler) ReadRuntimeData() (RuntimeData, error) {
	table, err := registerTable(h.cfg.Family)
	if err != nil {
		return nil, Enhance(&CommError{Code: CodeUnsupportedFamily, Message: err.Error(), Err: err}, h.details())
	}

	qty := uint16(payloadLength(table) / 2)
	payload, err := h.readRegisters(protocol.CmdReadRuntimeData, modbusRuntimeAddr, qty)
	if err != nil {
		return nil, err
	}

	data, err := decodeRuntime(payload, table)
	if err != nil {
		return nil, Enhance(&CommError{Code: CodeProtocolError, Message: err.Error(), Err: err}, h.details())
	}
	return data, nil
}

// readRegisters issues the appropriate read for the active protocol
// variant: the native command for UDP, a holding-register read for
// Modbus-TCP. Both return the raw register payload bytes.
func (h *Handler) readRegisters(command byte, modbusAddr uint16, qty uint16) ([]byte, error) {
	if h.cfg.Protocol == ProtocolUDP {
		return h.SendCommandWithRetry(command, nil)
	}

	pdu := make([]byte, 4)
	binary.BigEndian.PutUint16(pdu[0:2], modbusAddr)
	binary.BigEndian.PutUint16(pdu[2:4], qty)

	resp, err := h.SendCommandWithRetry(modbusFnReadHolding, pdu)
	if err != nil {
		return nil, err
	}

	// Response data: byte count followed by the registers.
	if len(resp) < 1 || len(resp)-1 < int(resp[0]) {
		return nil, Enhance(&CommError{
			Code:    CodeProtocolError,
			Message: fmt.Sprintf("invalid register payload: %d bytes", len(resp)),
		}, h.details())
	}
	return resp[1 : 1+int(resp[0])], nil
}
