// Package model provides capability-based model selection for production
// tasks. Instead of hardcoding model names, callers specify capabilities
// (orchestration, planning, writing) and the registry resolves them to
// available models with fallback chains.
package model

// Capability represents a semantic capability for model selection.
// Instead of specifying "claude-sonnet", callers specify "orchestration"
// or "writing".
type Capability string

const (
	// CapabilityOrchestration is for tool-calling production loop decisions.
	CapabilityOrchestration Capability = "orchestration"

	// CapabilityPlanning is for content plans and scene breakdowns.
	CapabilityPlanning Capability = "planning"

	// CapabilityWriting is for narration scripts and visual prompts.
	CapabilityWriting Capability = "writing"

	// CapabilityAnalysis is for intent analysis and quality evaluation.
	CapabilityAnalysis Capability = "analysis"

	// CapabilityFast is for quick classification and short summaries.
	CapabilityFast Capability = "fast"
)

// RoleCapabilities maps production roles to their default capability.
// Used when no explicit capability or model is specified.
var RoleCapabilities = map[string]Capability{
	"supervisor":     CapabilityOrchestration,
	"planning-agent": CapabilityPlanning,
	"script-agent":   CapabilityWriting,
	"visual-agent":   CapabilityWriting,
	"assembly-agent": CapabilityFast,
}

// CapabilityForRole returns the default capability for a given role.
// Returns CapabilityFast as fallback for unknown roles.
func CapabilityForRole(role string) Capability {
	if cap, ok := RoleCapabilities[role]; ok {
		return cap
	}
	return CapabilityFast
}

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityOrchestration, CapabilityPlanning, CapabilityWriting, CapabilityAnalysis, CapabilityFast:
		return true
	}
	return false
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for invalid values.
func ParseCapability(s string) Capability {
	cap := Capability(s)
	if cap.IsValid() {
		return cap
	}
	return ""
}
