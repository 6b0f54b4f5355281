// Package completion streams assistant replies from the configured
// inference providers.
package completion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/choraleia/opengpt/pkg/config"
	"github.com/choraleia/opengpt/pkg/models"
	"github.com/choraleia/opengpt/pkg/utils"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

var ErrModelRequired = errors.New("model is required")

// ModelFactory builds a chat model for a resolved option.
type ModelFactory func(ctx context.Context, opt config.ModelOption) (einoModel.BaseChatModel, error)

// ChunkFunc receives every streamed delta. Returning an error stops the stream.
type ChunkFunc func(chunk models.ChatCompletionChunk) error

// Service resolves models and streams completions.
type Service struct {
	options       []config.ModelOption
	systemPrompt  string
	openRouterKey string
	factory       ModelFactory
	logger        *slog.Logger
}

func NewService(cfg *config.AppConfig) *Service {
	return &Service{
		options:       cfg.ModelOptions(),
		systemPrompt:  cfg.SystemPrompt(),
		openRouterKey: cfg.OpenRouterAPIKey(),
		factory: func(ctx context.Context, opt config.ModelOption) (einoModel.BaseChatModel, error) {
			return NewChatModel(ctx, opt)
		},
		logger: utils.GetLogger(),
	}
}

// SetModelFactory replaces how chat models are built.
func (s *Service) SetModelFactory(f ModelFactory) {
	s.factory = f
}

// Models lists the selectable models.
func (s *Service) Models() []config.ModelOption {
	out := make([]config.ModelOption, len(s.options))
	copy(out, s.options)
	return out
}

// Resolve finds a configured model by name or model id. Unknown ids are
// passed through to OpenRouter.
func (s *Service) Resolve(name string) (config.ModelOption, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return config.ModelOption{}, ErrModelRequired
	}
	for _, o := range s.options {
		if o.Model == name || o.Name == name {
			return o, nil
		}
	}
	return config.ModelOption{
		Name:     name,
		Model:    name,
		Provider: "openrouter",
		BaseURL:  config.OpenRouterBaseURL,
		APIKey:   s.openRouterKey,
	}, nil
}

// Stream sends the conversation to the model and relays each delta to
// onChunk. It returns the assembled assistant message.
func (s *Service) Stream(ctx context.Context, req models.ChatCompletionRequest, onChunk ChunkFunc) (*models.Message, error) {
	opt, err := s.Resolve(req.Model)
	if err != nil {
		return nil, err
	}
	if req.WebSearch && opt.Provider == "openrouter" && !strings.HasSuffix(opt.Model, ":online") {
		opt.Model += ":online"
	}

	chatModel, err := s.factory(ctx, opt)
	if err != nil {
		return nil, err
	}

	reader, err := chatModel.Stream(ctx, s.buildMessages(req.Messages))
	if err != nil {
		return nil, fmt.Errorf("start stream: %w", err)
	}
	defer reader.Close()

	messageID := uuid.NewString()
	var chunks []*schema.Message
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.logger.Error("completion stream failed", "model", opt.Model, "error", err)
			return nil, fmt.Errorf("receive stream: %w", err)
		}
		chunks = append(chunks, chunk)
		if chunk.Content == "" && chunk.ReasoningContent == "" {
			continue
		}
		if err := onChunk(models.ChatCompletionChunk{
			MessageID:        messageID,
			Role:             models.RoleAssistant,
			Content:          chunk.Content,
			ReasoningContent: chunk.ReasoningContent,
		}); err != nil {
			return nil, err
		}
	}

	reply := &models.Message{ID: messageID, Role: models.RoleAssistant}
	if len(chunks) > 0 {
		full, err := schema.ConcatMessages(chunks)
		if err != nil {
			return nil, fmt.Errorf("concat stream: %w", err)
		}
		reply.Content = full.Content
	}
	s.logger.Debug("completion finished", "model", opt.Model, "chunks", len(chunks))
	return reply, nil
}

func (s *Service) buildMessages(history []models.Message) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(history)+1)
	if s.systemPrompt != "" {
		msgs = append(msgs, schema.SystemMessage(s.systemPrompt))
	}
	for _, m := range history {
		switch m.Role {
		case models.RoleUser:
			msgs = append(msgs, schema.UserMessage(m.Content))
		case models.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		}
	}
	return msgs
}
