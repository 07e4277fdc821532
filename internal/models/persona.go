package models

import "fmt"

// Persona is a named agent profile selecting backend behavior and prompt
// context. The set is closed; submissions with an unknown persona are
// rejected at the boundary.
type Persona string

const (
	PersonaSalesScout       Persona = "sales_scout"
	PersonaInventoryAnalyst Persona = "inventory_analyst"
	PersonaComplianceGuard  Persona = "compliance_guard"
	PersonaMarketingMaven   Persona = "marketing_maven"
	PersonaFootTrafficScout Persona = "foot_traffic_scout"
)

var validPersonas = map[Persona]struct{}{
	PersonaSalesScout:       {},
	PersonaInventoryAnalyst: {},
	PersonaComplianceGuard:  {},
	PersonaMarketingMaven:   {},
	PersonaFootTrafficScout: {},
}

// ParsePersona validates a raw persona identifier.
func ParsePersona(raw string) (Persona, error) {
	p := Persona(raw)
	if _, ok := validPersonas[p]; !ok {
		return "", fmt.Errorf("unknown persona: %q", raw)
	}
	return p, nil
}

// IntelligenceLevel selects how much reasoning effort the agent backend
// spends on a request.
type IntelligenceLevel string

const (
	IntelligenceQuick    IntelligenceLevel = "quick"
	IntelligenceStandard IntelligenceLevel = "standard"
	IntelligenceDeep     IntelligenceLevel = "deep"
)

// ParseIntelligenceLevel validates a raw level, defaulting to standard when
// empty.
func ParseIntelligenceLevel(raw string) (IntelligenceLevel, error) {
	if raw == "" {
		return IntelligenceStandard, nil
	}
	switch l := IntelligenceLevel(raw); l {
	case IntelligenceQuick, IntelligenceStandard, IntelligenceDeep:
		return l, nil
	default:
		return "", fmt.Errorf("unknown intelligence level: %q", raw)
	}
}
