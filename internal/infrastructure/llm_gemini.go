package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"neowhatai/internal/config"
	"neowhatai/internal/entities"
	"neowhatai/internal/interfaces"
)

// GeminiProvider is the alternative completion and embedding backend.
// Per-tenant OpenRouter keys do not apply to it.
type GeminiProvider struct {
	client     *genai.Client
	chatModel  string
	embedModel string
	dimension  int
	logger     *slog.Logger
}

func NewGeminiProvider(ctx context.Context, cfg config.Config, logger *slog.Logger) (*GeminiProvider, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiProvider{
		client:     client,
		chatModel:  cfg.GeminiChatModel,
		embedModel: cfg.GeminiEmbedModel,
		dimension:  cfg.EmbedDimension,
		logger:     logger,
	}, nil
}

func (g *GeminiProvider) Close() error {
	return g.client.Close()
}

func (g *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	em := g.client.EmbeddingModel(g.embedModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding data received from gemini")
	}
	if len(res.Embedding.Values) != g.dimension {
		return nil, fmt.Errorf("dimension mismatch: got %d, want %d", len(res.Embedding.Values), g.dimension)
	}
	return res.Embedding.Values, nil
}

func (g *GeminiProvider) Complete(ctx context.Context, messages []entities.ChatMessage, opts interfaces.CompletionOptions) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("empty message list")
	}
	last := messages[len(messages)-1]
	if last.Role != entities.RoleUser {
		return "", fmt.Errorf("last message must come from the user, got %q", last.Role)
	}

	model := g.client.GenerativeModel(g.chatModel)
	model.SetTemperature(float32(opts.Temperature))

	var history []*genai.Content
	for _, m := range messages[:len(messages)-1] {
		switch m.Role {
		case entities.RoleSystem:
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(m.Content)}}
		case entities.RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}

	session := model.StartChat()
	session.History = history

	resp, err := session.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini returned no text")
	}
	return sb.String(), nil
}
