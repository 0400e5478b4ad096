package codex

// ModelInfo describes one selectable model.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DefaultModels is the built-in model catalog.
func DefaultModels() []ModelInfo {
	return []ModelInfo{
		{ID: "codex", Name: "GPT-5.3-Codex", Description: "Most capable coding model"},
		{ID: "o3", Name: "O3", Description: "Advanced reasoning model"},
		{ID: "o4-mini", Name: "O4.1-mini", Description: "Fast and efficient"},
		{ID: "gpt-4.1", Name: "GPT-4.1", Description: "General purpose model"},
	}
}

// Models returns the model catalog.
func (s *Service) Models() []ModelInfo {
	return DefaultModels()
}
