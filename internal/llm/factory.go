package llm

import "fmt"

// New creates a provider from config, dispatching on the driver name.
func New(cfg ProviderConfig) (Provider, error) {
	switch cfg.Driver {
	case "anthropic":
		return NewAnthropicProvider(cfg)
	case "openai":
		return NewOpenAIProvider(cfg)
	case "":
		return nil, fmt.Errorf("llm driver not configured")
	default:
		return nil, fmt.Errorf("unknown llm driver %q", cfg.Driver)
	}
}
