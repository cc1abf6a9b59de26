package messagequeue

// CompletionJobPayload is the schema for completions.job messages. One job
// per submitted turn; the worker answers on the session's delta subject.
type CompletionJobPayload struct {
	SessionID      string `json:"session_id"`
	ConversationID int64  `json:"conversation_id"`
	Name           string `json:"name"`
	RequestID      int64  `json:"request_id"`
	ResponseID     int64  `json:"response_id"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	SystemPrompt   string `json:"system_prompt"`
	Prompt         string `json:"prompt"`
}

// CompletionDeltaPayload is the schema for completions.delta.{session}
// messages: one incremental fragment of assistant output. Done marks the
// final fragment of a job.
type CompletionDeltaPayload struct {
	ConversationID int64  `json:"conversation_id"`
	Name           string `json:"name"`
	RequestID      int64  `json:"request_id"`
	ResponseID     int64  `json:"response_id"`
	Delta          string `json:"delta"`
	Done           bool   `json:"done"`
}
