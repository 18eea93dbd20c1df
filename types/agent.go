package types

// AgentTag identifies which specialized agent produced or owns a cache or
// session entry.
type AgentTag string

const (
	// AgentGeneral handles general event information queries.
	AgentGeneral AgentTag = "general"
	// AgentExhibitors handles exhibitor/company/stand queries.
	AgentExhibitors AgentTag = "exhibitors"
	// AgentVisitors handles visitor/attendance/demographics queries.
	AgentVisitors AgentTag = "visitors"
)

// KnownAgentTags lists the agent tags shipped with the reference system.
// New tags can be registered at runtime through the router vocabulary and
// the orchestrator agent registry.
func KnownAgentTags() []AgentTag {
	return []AgentTag{AgentGeneral, AgentExhibitors, AgentVisitors}
}

// IsValid reports whether the tag is non-empty.
// Validation against the registered set is the orchestrator's job, since
// the set of agents is extensible.
func (t AgentTag) IsValid() bool {
	return t != ""
}

// String implements fmt.Stringer.
func (t AgentTag) String() string { return string(t) }
