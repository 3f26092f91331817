package enrich

import (
	"context"
	"fmt"

	"github.com/anatolykoptev/go_ytledger/internal/engine"
)

// Open builds the model endpoint selected by cfg.ModelProvider and wraps it in
// an Invoker with the configured call parameters.
func Open(ctx context.Context, cfg engine.Config, opts ...Option) (*Invoker, error) {
	var model Model
	switch cfg.ModelProvider {
	case "bedrock", "":
		bm, err := ConnectBedrock(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		model = bm
	case "openai":
		model = NewChatModel(cfg.LLMAPIBase, cfg.LLMAPIKey, cfg.LLMAPIKeyFallbacks)
	default:
		return nil, fmt.Errorf("enrich: unsupported model provider %q", cfg.ModelProvider)
	}
	return NewInvoker(model, Settings{
		ModelID:     cfg.ModelID,
		FallbackID:  cfg.ModelFallbackID,
		MaxTokens:   cfg.ModelMaxTokens,
		Temperature: cfg.ModelTemperature,
		TopP:        cfg.ModelTopP,
	}, opts...), nil
}
