// Package conversation models the ordered turn log of an agent session and
// provides budget-bounded trimming that never separates a tool invocation
// from its result.
package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the conversation package.
var (
	ErrMalformedConversation = errors.New("conversation: malformed turn sequence")
	ErrUnknownKind           = errors.New("conversation: unknown turn kind")
)

// Kind is the closed set of turn variants. Any other shape is rejected at the
// boundary, which makes the trimmer's pairing invariant a type-level property
// rather than a runtime string check.
type Kind int

const (
	// KindSystem is the system prompt or an injected memory block.
	KindSystem Kind = iota + 1
	// KindHuman is a user message.
	KindHuman
	// KindToolCall is an assistant turn carrying one or more tool invocations.
	KindToolCall
	// KindToolResult is the result of exactly one prior tool invocation.
	KindToolResult
	// KindAssistant is a plain assistant message without tool use.
	KindAssistant
)

var kindNames = map[Kind]string{
	KindSystem:     "system",
	KindHuman:      "human",
	KindToolCall:   "tool_call",
	KindToolResult: "tool_result",
	KindAssistant:  "assistant",
}

var kindValues = map[string]Kind{
	"system":      KindSystem,
	"human":       KindHuman,
	"tool_call":   KindToolCall,
	"tool_result": KindToolResult,
	"assistant":   KindAssistant,
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON encodes the kind as its wire name.
func (k Kind) MarshalJSON() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes a wire name, rejecting anything outside the closed set.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, ok := kindValues[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	*k = v
	return nil
}

// ToolCall is a single tool invocation requested by an assistant turn.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// Turn is one entry in a session's append-only conversation log.
type Turn struct {
	// ID uniquely identifies the turn.
	ID string `json:"id"`

	// Kind tags the variant.
	Kind Kind `json:"kind"`

	// Text is the message content. For KindToolResult it is the tool output.
	Text string `json:"text,omitempty"`

	// ToolCalls holds the invocations of a KindToolCall turn.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// CallID pairs a KindToolResult to exactly one prior invocation.
	CallID string `json:"call_id,omitempty"`

	// Timestamp is the creation time of the turn.
	Timestamp time.Time `json:"timestamp"`
}

// NewTurn creates a turn of the given kind with a fresh id.
func NewTurn(kind Kind, text string) Turn {
	return Turn{
		ID:        uuid.New().String(),
		Kind:      kind,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

// Validate checks the structural invariants of a turn sequence: every kind is
// in the closed set, every tool result follows the invocation it answers, and
// every invocation is answered before the next non-result turn. Violations
// are reported, never repaired by guessing a pairing.
func Validate(turns []Turn) error {
	// IDs of invocations from the most recent tool-call turn that still
	// await their results.
	open := make(map[string]struct{})

	for i, turn := range turns {
		switch turn.Kind {
		case KindSystem, KindHuman, KindAssistant:
			if len(open) > 0 {
				return fmt.Errorf("%w: turn %d (%s) interrupts %d unanswered tool call(s)",
					ErrMalformedConversation, i, turn.Kind, len(open))
			}
		case KindToolCall:
			if len(open) > 0 {
				return fmt.Errorf("%w: turn %d issues tool calls while %d remain unanswered",
					ErrMalformedConversation, i, len(open))
			}
			if len(turn.ToolCalls) == 0 {
				return fmt.Errorf("%w: turn %d is a tool-call turn with no invocations",
					ErrMalformedConversation, i)
			}
			for _, call := range turn.ToolCalls {
				if _, dup := open[call.ID]; dup {
					return fmt.Errorf("%w: turn %d repeats tool call id %q",
						ErrMalformedConversation, i, call.ID)
				}
				open[call.ID] = struct{}{}
			}
		case KindToolResult:
			if _, ok := open[turn.CallID]; !ok {
				return fmt.Errorf("%w: turn %d answers unknown tool call %q",
					ErrMalformedConversation, i, turn.CallID)
			}
			delete(open, turn.CallID)
		default:
			return fmt.Errorf("%w: turn %d has kind %d", ErrUnknownKind, i, int(turn.Kind))
		}
	}

	if len(open) > 0 {
		return fmt.Errorf("%w: conversation ends with %d unanswered tool call(s)",
			ErrMalformedConversation, len(open))
	}
	return nil
}
