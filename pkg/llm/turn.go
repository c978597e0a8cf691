package llm

// ConversationTurn is a completed chat exchange, recorded as a transcript.
type ConversationTurn struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Reply    Message   `json:"reply"`
}
