package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDomainConfig_IsValid(t *testing.T) {
	cfg := DefaultDomainConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, CascadeConservative, cfg.CascadePolicy)
	assert.Equal(t, DetachChain, cfg.DetachMode)
}

func TestDomainConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*DomainConfig)
		wantErr bool
	}{
		{name: "sweep policy", mutate: func(c *DomainConfig) { c.CascadePolicy = CascadeSweep }},
		{name: "closure detach", mutate: func(c *DomainConfig) { c.DetachMode = DetachClosure }},
		{name: "unknown policy", mutate: func(c *DomainConfig) { c.CascadePolicy = "everything" }, wantErr: true},
		{name: "unknown detach", mutate: func(c *DomainConfig) { c.DetachMode = "" }, wantErr: true},
		{name: "zero name limit", mutate: func(c *DomainConfig) { c.MaxNameLength = 0 }, wantErr: true},
		{name: "zero title limit", mutate: func(c *DomainConfig) { c.MaxTitleLength = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultDomainConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHolder_StoreRejectsInvalid(t *testing.T) {
	h := NewHolder(nil)
	original := h.Load()

	bad := DefaultDomainConfig()
	bad.DetachMode = "sideways"

	assert.Error(t, h.Store(bad))
	assert.Same(t, original, h.Load())

	good := DefaultDomainConfig()
	good.CascadePolicy = CascadeSweep
	require.NoError(t, h.Store(good))
	assert.Equal(t, CascadeSweep, h.Load().CascadePolicy)
}
