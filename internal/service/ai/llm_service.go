package ai

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/fsy-chat/internal/config"
)

const historyLimit = 10

// ModelResponder streams replies from a chat model through an eino chain.
type ModelResponder struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewModelResponder builds the ark chat model from cfg and compiles the chain.
func NewModelResponder(ctx context.Context, cfg config.AIConfig) (*ModelResponder, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create chat model")
	}
	return NewModelResponderWith(ctx, chatModel)
}

// NewModelResponderWith compiles the prompt chain around an existing model.
func NewModelResponderWith(ctx context.Context, chatModel model.BaseChatModel) (*ModelResponder, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile chat chain")
	}
	return &ModelResponder{chain: runnable}, nil
}

func (m *ModelResponder) Respond(ctx context.Context, preamble string, history []*schema.Message, query string) (*schema.StreamReader[*schema.Message], error) {
	stream, err := m.chain.Stream(ctx, map[string]any{
		"system":  preamble,
		"history": recentHistory(history),
		"query":   query,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to stream chat chain output")
	}
	log.Debug().Str("component", "ai").Int("history", len(history)).Msg("model reply started")
	return stream, nil
}

// recentHistory keeps the last user and assistant turns the model sees.
func recentHistory(messages []*schema.Message) []*schema.Message {
	start := 0
	if len(messages) > historyLimit {
		start = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		switch msg.Role {
		case schema.User, schema.Assistant:
			history = append(history, msg)
		}
	}
	return history
}
