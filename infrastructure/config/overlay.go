package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	domainconfig "stackture/domain/config"
)

// Overlay is the YAML file layered over the environment. Only the graph
// rules live here since they are the part that can change at runtime.
// Zero values leave the underlying setting untouched.
type Overlay struct {
	CascadePolicy string       `yaml:"cascade_policy"`
	DetachMode    string       `yaml:"detach_mode"`
	Limits        OverlayLimit `yaml:"limits"`
}

// OverlayLimit holds field length limits
type OverlayLimit struct {
	Name        int `yaml:"name"`
	Summary     int `yaml:"summary"`
	Icon        int `yaml:"icon"`
	Title       int `yaml:"title"`
	Description int `yaml:"description"`
}

// LoadOverlay reads and parses an overlay file
func LoadOverlay(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var o Overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &o, nil
}

// Apply returns a copy of base with the overlay's set fields applied
func (o *Overlay) Apply(base *domainconfig.DomainConfig) *domainconfig.DomainConfig {
	out := *base
	if o.CascadePolicy != "" {
		out.CascadePolicy = domainconfig.CascadePolicy(o.CascadePolicy)
	}
	if o.DetachMode != "" {
		out.DetachMode = domainconfig.DetachMode(o.DetachMode)
	}
	setIfPositive(&out.MaxNameLength, o.Limits.Name)
	setIfPositive(&out.MaxSummaryLength, o.Limits.Summary)
	setIfPositive(&out.MaxIconLength, o.Limits.Icon)
	setIfPositive(&out.MaxTitleLength, o.Limits.Title)
	setIfPositive(&out.MaxDescriptionLength, o.Limits.Description)
	return &out
}

func setIfPositive(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
