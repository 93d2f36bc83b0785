package translator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"thanos-chat/internal/aggregator"
	"thanos-chat/internal/models"
)

// TurnRequest is the body of POST /v1/turns.
type TurnRequest struct {
	Prompt string
}

// UnmarshalJSON implements custom parsing to enforce validation.
func (r *TurnRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Prompt string `json:"prompt"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode turn request: %w", err)
	}
	if strings.TrimSpace(raw.Prompt) == "" {
		return aggregator.ErrEmptyPrompt
	}

	r.Prompt = raw.Prompt
	return nil
}

// TurnResponse renders a turn with one entry per model in catalog order.
type TurnResponse struct {
	Object    string          `json:"object"`
	ID        string          `json:"id"`
	Prompt    string          `json:"prompt"`
	Pending   bool            `json:"pending"`
	Version   uint64          `json:"version"`
	CreatedAt int64           `json:"created_at"`
	SettledAt *int64          `json:"settled_at"`
	Answered  int             `json:"answered"`
	Total     int             `json:"total"`
	Responses []ModelResponse `json:"responses"`
}

// ModelResponse is one model's column in the side-by-side view.
type ModelResponse struct {
	Model    string `json:"model"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Pending  bool   `json:"pending"`
	Content  string `json:"content,omitempty"`
}

// FromTurn converts a turn snapshot. Models without an answer yet are reported as pending.
func FromTurn(turn aggregator.Turn, descriptors []models.Descriptor) TurnResponse {
	resp := TurnResponse{
		Object:    "turn",
		ID:        turn.ID,
		Prompt:    turn.Prompt,
		Pending:   turn.Pending,
		Version:   turn.Version,
		CreatedAt: turn.CreatedAt.Unix(),
		Answered:  len(turn.Responses),
		Total:     len(descriptors),
		Responses: make([]ModelResponse, 0, len(descriptors)),
	}
	if !turn.SettledAt.IsZero() {
		settled := turn.SettledAt.Unix()
		resp.SettledAt = &settled
	}

	for _, d := range descriptors {
		content, ok := turn.Responses[d.ID]
		resp.Responses = append(resp.Responses, ModelResponse{
			Model:    d.ID,
			Name:     d.Name,
			Provider: d.Provider,
			Pending:  !ok,
			Content:  content,
		})
	}
	return resp
}

// TurnList is the body of GET /v1/turns.
type TurnList struct {
	Object string         `json:"object"`
	Data   []TurnResponse `json:"data"`
}

// FromTurns converts the turn history, preserving order.
func FromTurns(turns []aggregator.Turn, descriptors []models.Descriptor) TurnList {
	list := TurnList{Object: "list", Data: make([]TurnResponse, 0, len(turns))}
	for _, turn := range turns {
		list.Data = append(list.Data, FromTurn(turn, descriptors))
	}
	return list
}

// ModelList is the body of GET /v1/models.
type ModelList struct {
	Object string        `json:"object"`
	Data   []ModelObject `json:"data"`
}

// ModelObject describes one configured model.
type ModelObject struct {
	models.Descriptor
	Object  string `json:"object"`
	Created int64  `json:"created"`
}

// FromDescriptors converts the catalog for listing.
func FromDescriptors(descriptors []models.Descriptor, created time.Time) ModelList {
	list := ModelList{Object: "list", Data: make([]ModelObject, 0, len(descriptors))}
	for _, d := range descriptors {
		list.Data = append(list.Data, ModelObject{
			Descriptor: d,
			Object:     "model",
			Created:    created.Unix(),
		})
	}
	return list
}
