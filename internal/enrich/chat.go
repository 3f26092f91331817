package enrich

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/anatolykoptev/go-kit/llm"
)

// ChatModel calls an OpenAI-compatible endpoint through go-kit/llm. One client
// is kept per model ID so a fallback model can be switched to mid-run.
type ChatModel struct {
	base, key    string
	fallbackKeys []string
	httpClient   *http.Client

	mu      sync.Mutex
	clients map[string]*llm.Client
}

func NewChatModel(base, key string, fallbackKeys []string) *ChatModel {
	return &ChatModel{
		base:         base,
		key:          key,
		fallbackKeys: fallbackKeys,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		clients:      make(map[string]*llm.Client),
	}
}

func (m *ChatModel) client(model string) *llm.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clients[model]; ok {
		return c
	}
	c := llm.NewClient(m.base, m.key, model,
		llm.WithFallbackKeys(m.fallbackKeys),
		llm.WithHTTPClient(m.httpClient),
	)
	m.clients[model] = c
	return c
}

// Invoke sends the prompt as a single user turn. TopP is not exposed by the
// chat client and is ignored.
func (m *ChatModel) Invoke(ctx context.Context, req Request) (string, error) {
	return m.client(req.ModelID).Complete(ctx, "", req.Prompt,
		llm.WithChatTemperature(req.Temperature),
		llm.WithChatMaxTokens(req.MaxTokens),
	)
}
