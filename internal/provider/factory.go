package provider

import "fmt"

const (
	BackendOllama = "ollama"
	BackendGemini = "gemini"
)

// BackendConfig mirrors config.BackendConfig to avoid circular imports.
type BackendConfig struct {
	ID      string
	Backend string
	BaseURL string
	APIKey  string
	Model   string
}

// FromConfig creates a Provider from a config entry. The backend field
// determines the wire format:
//   - "ollama" -> locally served Ollama chat API
//   - "gemini" -> Google Generative Language REST API
func FromConfig(cfg BackendConfig) (Provider, error) {
	switch cfg.Backend {
	case BackendOllama, "":
		return NewOllamaProvider(cfg.ID, cfg.BaseURL, cfg.Model), nil
	case BackendGemini:
		return NewGeminiProvider(cfg.ID, cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown backend %q for provider %q (supported: %s, %s)",
			cfg.Backend, cfg.ID, BackendOllama, BackendGemini)
	}
}
