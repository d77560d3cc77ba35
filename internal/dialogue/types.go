// Package dialogue runs the per-turn state machine that ties the model
// gateway, the memory subsystem, and the tool runner together.
package dialogue

import "strings"

// Turn is one prior exchange supplied by the caller.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one incoming chat turn.
type Request struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id"`
	PersonaID string         `json:"persona_id,omitempty"`
	Branch    string         `json:"branch,omitempty"`
	History   []Turn         `json:"history,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Stream    bool           `json:"stream,omitempty"`
}

func (r *Request) metaString(key string) string {
	if r.Metadata == nil {
		return ""
	}
	s, _ := r.Metadata[key].(string)
	return strings.TrimSpace(s)
}

func (r *Request) metaBool(key string) bool {
	if r.Metadata == nil {
		return false
	}
	switch v := r.Metadata[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	default:
		return false
	}
}

// RequestID returns the caller-supplied request id, if any.
func (r *Request) RequestID() string { return r.metaString("request_id") }

// MemoryBarrier reports whether this turn must leave no trace: no
// durable rows and no short-term buffer mutation.
func (r *Request) MemoryBarrier() bool { return r.metaBool("memory_barrier") }

// AvatarAction returns the caller-requested avatar intent, if any.
func (r *Request) AvatarAction() string { return r.metaString("avatar_action") }

// SuggestReplies reports whether the caller asked for reply suggestions.
func (r *Request) SuggestReplies() bool { return r.metaBool("suggest_replies") }

// SummarizeState reports whether the caller asked for a state summary.
func (r *Request) SummarizeState() bool { return r.metaBool("summarize_state") }

// Sentiment returns the caller-supplied sentiment hint, if any.
func (r *Request) Sentiment() string { return r.metaString("sentiment") }

// ToolOutcome is one entry in the ordered tool results list. Exactly
// one of Result and Error is set.
type ToolOutcome struct {
	Tool   string `json:"tool"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Stats summarizes the accounting side of one turn.
type Stats struct {
	Model      string  `json:"model"`
	TokensIn   int64   `json:"tokens_in"`
	TokensOut  int64   `json:"tokens_out"`
	CostUSD    float64 `json:"cost_usd"`
	DurationMS int64   `json:"duration_ms"`
}

// Response is the structured result of one completed turn.
type Response struct {
	Reply     string        `json:"reply"`
	SessionID string        `json:"session_id"`
	PersonaID string        `json:"persona_id"`
	Memories  []string      `json:"memories"`
	Plan      string        `json:"plan"`
	Tools     []ToolOutcome `json:"tools"`
	Stats     Stats         `json:"stats"`
}

// Frame types for the streaming variant.
const (
	FrameChunk = "chunk"
	FrameDone  = "done"
)

// StreamFrame is one element of a streaming response: chunk frames
// carry content, the final done frame carries identity and stats.
type StreamFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	PersonaID string `json:"persona_id,omitempty"`
	Stats     *Stats `json:"stats,omitempty"`
}
