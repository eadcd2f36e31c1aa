package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind tags a message variant. The set of kinds is closed: every consumer
// switches on Kind rather than inspecting payload fields.
type Kind string

const (
	// KindText is a plain text turn produced by a participant.
	KindText Kind = "text"
	// KindMultiModal is a turn carrying text plus image content.
	KindMultiModal Kind = "multimodal"
	// KindStop signals that the run should end.
	KindStop Kind = "stop"
	// KindHandoff transfers the turn to the participant named in Target.
	KindHandoff Kind = "handoff"
	// KindToolCall is a tool invocation request.
	KindToolCall Kind = "tool_call"
	// KindToolCallResult carries the result of an executed tool call.
	KindToolCallResult Kind = "tool_call_result"
	// KindProposal is a candidate answer submitted during a voting round.
	KindProposal Kind = "proposal"
	// KindVote names the proposal a participant votes for.
	KindVote Kind = "vote"
	// KindVotingResult announces the outcome of a vote tally.
	KindVotingResult Kind = "voting_result"
)

// ToolCall represents a tool invocation request embedded in a message.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ImageContent represents image data for multimodal messages.
type ImageContent struct {
	Type string `json:"type"` // "url" or "base64"
	URL  string `json:"url,omitempty"`
	Data string `json:"data,omitempty"` // base64 encoded
}

// Message is one entry in a group conversation. A message is created by
// exactly one participant (or the manager), is immutable once published, and
// is appended to a single ordered Thread owned by the orchestration manager.
type Message struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Source    string         `json:"source"`
	Content   string         `json:"content,omitempty"`
	Target    string         `json:"target,omitempty"` // handoff target, vote choice
	Images    []ImageContent `json:"images,omitempty"`
	ToolCalls []ToolCall     `json:"tool_calls,omitempty"`
	Tally     map[string]int `json:"tally,omitempty"` // voting result counts
	Usage     TokenUsage     `json:"usage,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp,omitempty"`
}

// NewMessage creates a message of the given kind with a fresh ID.
func NewMessage(kind Kind, source, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Kind:      kind,
		Source:    source,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewTextMessage creates a plain text message.
func NewTextMessage(source, content string) Message {
	return NewMessage(KindText, source, content)
}

// NewMultiModalMessage creates a message with text and image content.
func NewMultiModalMessage(source, content string, images []ImageContent) Message {
	m := NewMessage(KindMultiModal, source, content)
	m.Images = images
	return m
}

// NewStopMessage creates a stop message explaining why the run ended.
func NewStopMessage(source, reason string) Message {
	return NewMessage(KindStop, source, reason)
}

// NewHandoffMessage creates a handoff naming the next speaker.
func NewHandoffMessage(source, target, content string) Message {
	m := NewMessage(KindHandoff, source, content)
	m.Target = target
	return m
}

// NewToolCallMessage creates a tool invocation message.
func NewToolCallMessage(source string, calls []ToolCall) Message {
	m := NewMessage(KindToolCall, source, "")
	m.ToolCalls = calls
	return m
}

// NewToolCallResultMessage creates a tool result message.
func NewToolCallResultMessage(source, content string) Message {
	return NewMessage(KindToolCallResult, source, content)
}

// NewProposalMessage creates a proposal for a voting round.
func NewProposalMessage(source, content string) Message {
	return NewMessage(KindProposal, source, content)
}

// NewVoteMessage creates a vote naming the proposing participant.
func NewVoteMessage(source, choice string) Message {
	m := NewMessage(KindVote, source, "")
	m.Target = choice
	return m
}

// NewVotingResultMessage announces the winner of a vote tally.
func NewVotingResultMessage(source, winner string, tally map[string]int) Message {
	m := NewMessage(KindVotingResult, source, "")
	m.Target = winner
	m.Tally = tally
	return m
}

// WithUsage attaches token usage metadata to the message.
func (m Message) WithUsage(usage TokenUsage) Message {
	m.Usage = usage
	return m
}

// WithMetadata attaches arbitrary metadata to the message.
func (m Message) WithMetadata(metadata map[string]any) Message {
	m.Metadata = metadata
	return m
}

// Render returns the textual rendering of the message, the form that
// transition conditions and text-mention termination match against.
// Matching is a plain substring test against this rendering; partial-word
// matches are possible and callers relying on it should pick distinctive
// markers.
func (m Message) Render() string {
	switch m.Kind {
	case KindHandoff:
		if m.Content != "" {
			return m.Content
		}
		return fmt.Sprintf("transferred to %s", m.Target)
	case KindVote:
		return m.Target
	case KindVotingResult:
		return fmt.Sprintf("voting result: %s", m.Target)
	case KindToolCall:
		names := ""
		for i, tc := range m.ToolCalls {
			if i > 0 {
				names += ", "
			}
			names += tc.Name
		}
		return names
	default:
		return m.Content
	}
}

// Thread is the ordered message history of one run. The orchestration
// manager is its single writer; everything else only reads it.
type Thread []Message

// Last returns the most recent message, if any.
func (t Thread) Last() (Message, bool) {
	if len(t) == 0 {
		return Message{}, false
	}
	return t[len(t)-1], true
}

// Since returns the messages appended after index n.
func (t Thread) Since(n int) []Message {
	if n >= len(t) {
		return nil
	}
	return t[n:]
}

// Clone returns a copy safe to retain across later appends.
func (t Thread) Clone() Thread {
	out := make(Thread, len(t))
	copy(out, t)
	return out
}
