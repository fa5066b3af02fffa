package types

import "time"

// Message is the canonical chat message shape. All provider-specific wire
// formats are converted to/from this type.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionRequest is the canonical request passed to a completion engine.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// CompletionResponse is the canonical engine response.
type CompletionResponse struct {
	Text         string `json:"text"`
	Usage        *Usage `json:"usage,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// EngineDescriptor is the immutable catalog entry for one completion engine.
// Rates are cents per million tokens.
type EngineDescriptor struct {
	ID          string
	Provider    string
	DisplayName string
	Enabled     bool
	InputRate   int64
	OutputRate  int64
}

// Persona is one configured character: an engine plus a system prompt and
// sampling parameters. OwnerID is empty for global personas.
type Persona struct {
	ID             string
	OwnerID        string
	EngineID       string
	Label          string
	Specialization string
	SystemPrompt   string
	Temperature    float64
	MaxTokens      int
	AvatarURL      string
}

// BudgetState is the caller's spending record. Owned by the users table;
// the core only reads it and issues atomic deductions.
type BudgetState struct {
	UserID                    string
	BudgetCents               int64
	MaxBudgetPerQuestionCents int64
	MaxBatonPasses            int
	TruthinessThreshold       float64
}

// Conversation is an ordered, append-only message history bound to one persona.
type Conversation struct {
	ID        string
	PersonaID string
	CreatedAt time.Time
}

// StoredMessage is one persisted conversation row. The system message is
// synthesized from the persona at call time and never stored.
type StoredMessage struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CostCents      int64
	CreatedAt      time.Time
}
