package types

import "time"

// Role represents the role of a conversation turn participant.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Turn represents a single conversation turn within a session.
type Turn struct {
	Role       Role           `json:"role"`
	Text       string         `json:"text"`
	AgentTag   AgentTag       `json:"agent_tag,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	Cached     bool           `json:"cached,omitempty"`
	Failed     bool           `json:"failed,omitempty"`
	TurnID     string         `json:"turn_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewUserTurn creates a user turn with the given text.
func NewUserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text, Timestamp: time.Now()}
}

// NewAgentTurn creates an agent turn carrying routing provenance.
func NewAgentTurn(text string, tag AgentTag, confidence float64, cached bool) Turn {
	return Turn{
		Role:       RoleAgent,
		Text:       text,
		AgentTag:   tag,
		Confidence: confidence,
		Cached:     cached,
		Timestamp:  time.Now(),
	}
}

// WithMetadata adds metadata to the turn.
func (t Turn) WithMetadata(metadata map[string]any) Turn {
	t.Metadata = metadata
	return t
}
