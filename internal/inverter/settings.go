package inverter

import (
	"fmt"
	"sort"
	"strings"
)

// SettingKind distinguishes numeric-range settings from enumerated ones.
type SettingKind int

const (
	// KindRange settings accept any value within [Min, Max].
	KindRange SettingKind = iota
	// KindEnum settings accept only the listed values.
	KindEnum
)

// SettingDescriptor describes one writable inverter setting. The table of
// descriptors is static; it is consulted by validation and never mutated
// at runtime.
type SettingDescriptor struct {
	Name    string
	Kind    SettingKind
	Min     float64
	Max     float64
	Allowed []float64
	Unit    string
}

// settingTable is the closed set of known writable settings.
var settingTable = map[string]SettingDescriptor{
	"grid_export_limit": {
		Name: "grid_export_limit",
		Kind: KindRange,
		Min:  0,
		Max:  10000,
		Unit: "W",
	},
	"battery_discharge_depth": {
		Name: "battery_discharge_depth",
		Kind: KindRange,
		Min:  0,
		Max:  100,
		Unit: "%",
	},
	"battery_soc_min": {
		Name: "battery_soc_min",
		Kind: KindRange,
		Min:  0,
		Max:  100,
		Unit: "%",
	},
	"work_mode": {
		Name:    "work_mode",
		Kind:    KindEnum,
		Allowed: []float64{0, 1, 2, 3},
	},
	"grid_export": {
		Name:    "grid_export",
		Kind:    KindEnum,
		Allowed: []float64{0, 1},
	},
	"shadow_scan": {
		Name:    "shadow_scan",
		Kind:    KindEnum,
		Allowed: []float64{0, 1},
	},
}

// LookupSetting returns the descriptor for a setting name.
func LookupSetting(name string) (SettingDescriptor, bool) {
	d, ok := settingTable[name]
	return d, ok
}

// SettingNames returns all known setting names, sorted.
func SettingNames() []string {
	names := make([]string, 0, len(settingTable))
	for name := range settingTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateSetting checks a value against the static descriptor table.
// It returns nil when the value is acceptable, or an error describing why
// it is not: unknown name, numeric value out of range, or a value outside
// an enum's allowed set.
func ValidateSetting(name string, value float64) error {
	desc, ok := settingTable[name]
	if !ok {
		return fmt.Errorf("Unknown setting: %q", name)
	}

	switch desc.Kind {
	case KindRange:
		if value < desc.Min || value > desc.Max {
			return fmt.Errorf("%s out of range: %g (valid %g-%g%s)",
				name, value, desc.Min, desc.Max, unitSuffix(desc.Unit))
		}
	case KindEnum:
		for _, allowed := range desc.Allowed {
			if value == allowed {
				return nil
			}
		}
		return fmt.Errorf("invalid value for %s: %g (allowed %s)",
			name, value, formatAllowed(desc.Allowed))
	}

	return nil
}

func unitSuffix(unit string) string {
	if unit == "" {
		return ""
	}
	return " " + unit
}

func formatAllowed(allowed []float64) string {
	parts := make([]string, len(allowed))
	for i, v := range allowed {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return strings.Join(parts, ",")
}
