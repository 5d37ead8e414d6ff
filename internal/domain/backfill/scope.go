package backfill

// ScopeType distinguishes a sweep of every configured district from a run
// against an explicit target list.
type ScopeType string

const (
	// ScopeSystemWide covers every configured district.
	ScopeSystemWide ScopeType = "SYSTEM_WIDE"

	// ScopeTargeted covers only the districts named on the request.
	ScopeTargeted ScopeType = "TARGETED"
)

// Scope describes the set of districts a backfill job covers. It is immutable
// once a job is created.
type Scope struct {
	scopeType           ScopeType
	targetDistricts     []string
	configuredDistricts []string
}

// NewSystemWideScope builds a scope covering all configured districts.
func NewSystemWideScope(configuredDistricts []string) Scope {
	return Scope{
		scopeType:           ScopeSystemWide,
		configuredDistricts: copyStrings(configuredDistricts),
	}
}

// NewTargetedScope builds a scope covering an explicit district list.
func NewTargetedScope(targetDistricts, configuredDistricts []string) Scope {
	return Scope{
		scopeType:           ScopeTargeted,
		targetDistricts:     copyStrings(targetDistricts),
		configuredDistricts: copyStrings(configuredDistricts),
	}
}

// Type returns the scope type.
func (s Scope) Type() ScopeType { return s.scopeType }

// TargetDistricts returns the explicit target list, if any.
func (s Scope) TargetDistricts() []string { return copyStrings(s.targetDistricts) }

// ConfiguredDistricts returns the full configured district list.
func (s Scope) ConfiguredDistricts() []string { return copyStrings(s.configuredDistricts) }

// Districts resolves the scope to the districts a run must cover.
func (s Scope) Districts() []string {
	if s.scopeType == ScopeTargeted {
		return copyStrings(s.targetDistricts)
	}
	return copyStrings(s.configuredDistricts)
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
