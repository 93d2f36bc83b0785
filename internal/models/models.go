package models

// Provider tags understood by the gateway.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// Descriptor identifies an upstream chat model the aggregator can target.
type Descriptor struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Provider    string   `json:"provider" yaml:"provider"`
	ModelID     string   `json:"model_id" yaml:"model_id"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Strengths   []string `json:"strengths,omitempty" yaml:"strengths"`
	FreeTier    bool     `json:"free_tier" yaml:"free_tier"`
}

// Message represents a single conversational message sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DefaultDescriptors returns the built-in model lineup.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{
			ID:          "deepseek",
			Name:        "DeepSeek",
			Provider:    ProviderOpenRouter,
			ModelID:     "deepseek/deepseek-chat",
			Description: "Advanced reasoning and coding capabilities",
			Strengths:   []string{"Code Generation", "Complex Reasoning", "Mathematics"},
			FreeTier:    true,
		},
		{
			ID:          "gemma",
			Name:        "Gemma 2",
			Provider:    ProviderOpenRouter,
			ModelID:     "google/gemma-2-9b-it:free",
			Description: "Google's efficient language model",
			Strengths:   []string{"Fast Responses", "Efficient", "Multilingual"},
			FreeTier:    true,
		},
		{
			ID:          "gpt35",
			Name:        "GPT-3.5 Turbo",
			Provider:    ProviderOpenRouter,
			ModelID:     "openai/gpt-3.5-turbo",
			Description: "OpenAI's versatile language model",
			Strengths:   []string{"General Purpose", "Creative Writing", "Conversation"},
			FreeTier:    true,
		},
		{
			ID:          "mistral",
			Name:        "Mistral 7B",
			Provider:    ProviderOpenRouter,
			ModelID:     "mistralai/mistral-7b-instruct:free",
			Description: "Efficient and capable open-source model",
			Strengths:   []string{"Instruction Following", "Efficiency", "Open Source"},
			FreeTier:    true,
		},
	}
}
