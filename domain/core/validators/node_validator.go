package validators

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"stackture/domain/config"
	"stackture/pkg/errors"
)

// NodeValidator checks node and workspace attributes against the domain limits
type NodeValidator struct {
	cfg *config.DomainConfig
}

// NewNodeValidator creates a validator bound to cfg
func NewNodeValidator(cfg *config.DomainConfig) *NodeValidator {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &NodeValidator{cfg: cfg}
}

// ValidateNodeAttributes validates the display attributes of a node
func (v *NodeValidator) ValidateNodeAttributes(name, summary, icon string) error {
	if strings.TrimSpace(name) == "" {
		return errors.InvalidArgument("node name cannot be empty")
	}
	if err := maxLength("name", name, v.cfg.MaxNameLength); err != nil {
		return err
	}
	if err := maxLength("summary", summary, v.cfg.MaxSummaryLength); err != nil {
		return err
	}
	return maxLength("icon", icon, v.cfg.MaxIconLength)
}

// ValidateWorkspaceAttributes validates workspace title and description
func (v *NodeValidator) ValidateWorkspaceAttributes(ownerID, title, description string) error {
	if ownerID == "" {
		return errors.InvalidArgument("workspace owner cannot be empty")
	}
	if strings.TrimSpace(title) == "" {
		return errors.InvalidArgument("workspace title cannot be empty")
	}
	if err := maxLength("title", title, v.cfg.MaxTitleLength); err != nil {
		return err
	}
	return maxLength("description", description, v.cfg.MaxDescriptionLength)
}

func maxLength(field, value string, limit int) error {
	if n := utf8.RuneCountInString(value); n > limit {
		return errors.InvalidArgument(fmt.Sprintf("%s exceeds %d characters", field, limit)).
			WithDetails(map[string]interface{}{"field": field, "length": n})
	}
	return nil
}
