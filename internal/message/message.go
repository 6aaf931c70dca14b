package message

import "strings"

// Field names used by displays and the ignore-field list.
const (
	FieldLabels          = "labels"
	FieldLabelCandidates = "label_candidates"
	FieldTextCandidates  = "text_candidates"
	FieldReward          = "reward"
)

// Message is one act exchanged between agents.
type Message struct {
	ID              string            `json:"id"`
	Text            string            `json:"text"`
	EpisodeDone     bool              `json:"episode_done"`
	Labels          []string          `json:"labels,omitempty"`
	LabelCandidates []string          `json:"label_candidates,omitempty"`
	TextCandidates  []string          `json:"text_candidates,omitempty"`
	Reward          *float64          `json:"reward,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// IsEmpty reports whether the message carries nothing to display.
func (m Message) IsEmpty() bool {
	return m.ID == "" && strings.TrimSpace(m.Text) == "" && !m.EpisodeDone &&
		len(m.Labels) == 0 && len(m.LabelCandidates) == 0 && len(m.TextCandidates) == 0 &&
		m.Reward == nil && len(m.Extra) == 0
}
