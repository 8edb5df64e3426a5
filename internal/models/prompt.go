// internal/models/prompt.go
package models

import "github.com/neverhq/never-service/internal/escalation"

// Prompt is a row in the prompt pool. UsageCount is incremented by the lobby
// state machine whenever the round builder selects the prompt.
type Prompt struct {
	ID         int64           `json:"id"`
	Text       string          `json:"text"`
	Intensity  int             `json:"intensity"`
	Tone       escalation.Tone `json:"tone"`
	NSFW       bool            `json:"nsfw"`
	Language   string          `json:"language"`
	UsageCount int             `json:"usage_count"`
}
