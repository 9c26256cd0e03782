// Package config persists CLI-side configuration: named inverter
// connection profiles and where to store them on each platform.
//
// The protocol stack itself takes its configuration as plain values; this
// package exists so the CLI can remember devices between runs. The file
// lives under the platform config directory (XDG on Linux) as YAML.
package config
