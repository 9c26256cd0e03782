package config

import (
	"time"

	"github.com/solarkit/goodwe-lan/internal/inverter"
)

// Registry represents the entire user configuration file. It stores named
// connection profiles and application preferences for the CLI; the
// protocol stack itself never reads it.
type Registry struct {
	Version  int                 `yaml:"version"`
	Profiles map[string]*Profile `yaml:"profiles,omitempty"` // keyed by profile name
}

// Profile is a saved connection configuration for one inverter.
type Profile struct {
	Host      string    `yaml:"host"`
	Port      int       `yaml:"port,omitempty"`
	Protocol  string    `yaml:"protocol,omitempty"` // udp, tcp, modbus
	Family    string    `yaml:"family,omitempty"`   // ET, DT, ES
	TimeoutMs int       `yaml:"timeout_ms,omitempty"`
	Retries   int       `yaml:"retries,omitempty"`
	Nickname  string    `yaml:"nickname,omitempty"` // user-friendly name
	LastSeen  time.Time `yaml:"last_seen,omitempty"`
}

// HandlerConfig converts the profile into a handler configuration.
// Unset fields stay zero so the handler's own defaults apply.
func (p *Profile) HandlerConfig() inverter.Config {
	cfg := inverter.Config{
		Host:     p.Host,
		Port:     p.Port,
		Protocol: inverter.Protocol(p.Protocol),
		Family:   inverter.Family(p.Family),
		Retries:  p.Retries,
	}
	if p.TimeoutMs > 0 {
		cfg.Timeout = time.Duration(p.TimeoutMs) * time.Millisecond
	}
	return cfg
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:  1,
		Profiles: make(map[string]*Profile),
	}
}

// Profile returns the named profile, or nil if it does not exist.
func (r *Registry) Profile(name string) *Profile {
	if r.Profiles == nil {
		return nil
	}
	return r.Profiles[name]
}

// SetProfile stores a profile under the given name, replacing any
// existing entry.
func (r *Registry) SetProfile(name string, p *Profile) {
	if r.Profiles == nil {
		r.Profiles = make(map[string]*Profile)
	}
	r.Profiles[name] = p
}
