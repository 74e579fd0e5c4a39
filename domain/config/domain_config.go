package config

import (
	"fmt"
	"sync/atomic"
)

// CascadePolicy selects how cascading deletion treats shared descendants.
type CascadePolicy string

const (
	// CascadeConservative deletes a descendant only once every parent it has
	// is gone. Nodes still reachable from outside the sweep survive.
	CascadeConservative CascadePolicy = "conservative"
	// CascadeSweep deletes the whole downward closure of the start node.
	CascadeSweep CascadePolicy = "sweep"
)

// DetachMode selects which ancestors BORROW detaches the branch from.
type DetachMode string

const (
	// DetachChain follows a single parent upward at each step (lowest id first).
	DetachChain DetachMode = "chain"
	// DetachClosure uses every ancestor of the target node.
	DetachClosure DetachMode = "closure"
)

// DomainConfig holds the configurable rules of the node graph
type DomainConfig struct {
	// Structural policies
	CascadePolicy CascadePolicy
	DetachMode    DetachMode

	// Node constraints
	MaxNameLength    int
	MaxSummaryLength int
	MaxIconLength    int

	// Workspace constraints
	MaxTitleLength       int
	MaxDescriptionLength int
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		CascadePolicy: CascadeConservative,
		DetachMode:    DetachChain,

		MaxNameLength:    200,
		MaxSummaryLength: 10000,
		MaxIconLength:    64,

		MaxTitleLength:       200,
		MaxDescriptionLength: 2000,
	}
}

// Validate ensures the configuration is usable
func (c *DomainConfig) Validate() error {
	switch c.CascadePolicy {
	case CascadeConservative, CascadeSweep:
	default:
		return fmt.Errorf("unknown cascade policy %q", c.CascadePolicy)
	}
	switch c.DetachMode {
	case DetachChain, DetachClosure:
	default:
		return fmt.Errorf("unknown detach mode %q", c.DetachMode)
	}
	if c.MaxNameLength <= 0 || c.MaxSummaryLength <= 0 || c.MaxIconLength <= 0 {
		return fmt.Errorf("node field limits must be positive")
	}
	if c.MaxTitleLength <= 0 || c.MaxDescriptionLength <= 0 {
		return fmt.Errorf("workspace field limits must be positive")
	}
	return nil
}

// Holder publishes the current DomainConfig to concurrent readers.
// The config watcher swaps in new values while operations are in flight.
type Holder struct {
	current atomic.Pointer[DomainConfig]
}

// NewHolder creates a holder seeded with cfg
func NewHolder(cfg *DomainConfig) *Holder {
	if cfg == nil {
		cfg = DefaultDomainConfig()
	}
	h := &Holder{}
	h.current.Store(cfg)
	return h
}

// Load returns the active configuration. Callers must not mutate it.
func (h *Holder) Load() *DomainConfig {
	return h.current.Load()
}

// Store replaces the active configuration after validating it
func (h *Holder) Store(cfg *DomainConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	h.current.Store(cfg)
	return nil
}
