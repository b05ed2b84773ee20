package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"neowhatai/internal/config"
	"neowhatai/internal/entities"
	"neowhatai/internal/interfaces"
)

// OpenAIProvider talks to OpenRouter (chat) and an OpenAI-compatible
// embeddings endpoint through langchaingo.
type OpenAIProvider struct {
	baseURL    string
	defaultKey string
	model      string
	httpClient *http.Client

	mu      sync.Mutex
	clients *lru.Cache[string, *openai.LLM] // by API key

	embedder  embeddings.Embedder
	embedName string
	dimension int

	logger *slog.Logger
}

// maxChatClients bounds the per-key client cache; the least recently used client is dropped.
const maxChatClients = 64

// headerTransport adds the attribution headers OpenRouter uses for app rankings.
type headerTransport struct {
	base    http.RoundTripper
	referer string
	title   string
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.referer != "" {
		req.Header.Set("HTTP-Referer", t.referer)
	}
	if t.title != "" {
		req.Header.Set("X-Title", t.title)
	}
	return t.base.RoundTrip(req)
}

func NewOpenAIProvider(cfg config.Config, logger *slog.Logger) (*OpenAIProvider, error) {
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: headerTransport{
			base:    http.DefaultTransport,
			referer: cfg.SiteURL,
			title:   cfg.AppName,
		},
	}

	clients, err := lru.New[string, *openai.LLM](maxChatClients)
	if err != nil {
		return nil, fmt.Errorf("create client cache: %w", err)
	}

	p := &OpenAIProvider{
		baseURL:    cfg.OpenRouterURL,
		defaultKey: cfg.DefaultLLMKey,
		model:      cfg.ChatModel,
		httpClient: httpClient,
		clients:    clients,
		embedName:  cfg.EmbedModel,
		dimension:  cfg.EmbedDimension,
		logger:     logger,
	}

	// Embeddings go to OpenAI directly when a key is configured, else through OpenRouter.
	embedOpts := []openai.Option{
		openai.WithEmbeddingModel(cfg.EmbedModel),
		openai.WithHTTPClient(httpClient),
	}
	switch {
	case cfg.OpenAIAPIKey != "":
		embedOpts = append(embedOpts, openai.WithToken(cfg.OpenAIAPIKey))
		if cfg.OpenAIBaseURL != "" {
			embedOpts = append(embedOpts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
	case cfg.DefaultLLMKey != "":
		embedOpts = append(embedOpts, openai.WithToken(cfg.DefaultLLMKey), openai.WithBaseURL(cfg.OpenRouterURL))
	default:
		return nil, fmt.Errorf("OPENAI_API_KEY or OPENROUTER_API_KEY required for embeddings")
	}

	llm, err := openai.New(embedOpts...)
	if err != nil {
		return nil, fmt.Errorf("create openai embedding client: %w", err)
	}
	p.embedder, err = embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create openai embedder: %w", err)
	}

	return p, nil
}

func (p *OpenAIProvider) client(key string) (*openai.LLM, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients.Get(key); ok {
		return c, nil
	}
	c, err := openai.New(
		openai.WithToken(key),
		openai.WithBaseURL(p.baseURL),
		openai.WithModel(p.model),
		openai.WithHTTPClient(p.httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("create openrouter client: %w", err)
	}
	p.clients.Add(key, c)
	return c, nil
}

func (p *OpenAIProvider) Complete(ctx context.Context, messages []entities.ChatMessage, opts interfaces.CompletionOptions) (string, error) {
	key, ok := opts.APIKey.Get()
	if !ok {
		key = p.defaultKey
	}
	if key == "" {
		return "", fmt.Errorf("no OpenRouter API key available")
	}

	llm, err := p.client(key)
	if err != nil {
		return "", err
	}

	model := opts.Model
	if model == "" {
		model = p.model
	}

	start := time.Now()
	resp, err := llm.GenerateContent(ctx, toLangchain(messages),
		llms.WithModel(model),
		llms.WithTemperature(opts.Temperature),
	)
	if err != nil {
		p.logger.Warn("completion failed", "model", model, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return "", fmt.Errorf("generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	p.logger.Debug("completion done", "model", model, "duration_ms", time.Since(start).Milliseconds())
	return resp.Choices[0].Content, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		p.logger.Warn("embedding failed", "model", p.embedName, "text_len", len(text), "error", err)
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vec) != p.dimension {
		return nil, fmt.Errorf("dimension mismatch: got %d, want %d", len(vec), p.dimension)
	}
	p.logger.Debug("embedding complete", "model", p.embedName, "duration_ms", time.Since(start).Milliseconds())
	return vec, nil
}

func toLangchain(messages []entities.ChatMessage) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case entities.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case entities.RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}
