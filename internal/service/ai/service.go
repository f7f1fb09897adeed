// Package ai binds the chat model behind the streaming contract the
// stream controller consumes. Each call receives the complete ordered
// history; the model protocol itself is stateless across calls.
package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/meetai-labs/meetai/backend/internal/config"
	"github.com/meetai-labs/meetai/backend/internal/model/chat"
	chatservice "github.com/meetai-labs/meetai/backend/internal/service/chat"
)

// Service runs conversation turns through a prompt-template + chat-model
// chain and exposes them as ordered chunk streams.
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the chat chain from configuration.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chatModel: chatModel, chain: runnable}, nil
}

// StreamTurn starts one model call over the full history and returns its
// chunk stream. Implements the stream controller's Streamer contract.
func (s *Service) StreamTurn(ctx context.Context, history []chat.Message) (chatservice.ChunkStream, error) {
	input := map[string]any{
		"system":  systemInstruction,
		"history": buildHistoryMessages(history),
	}

	stream, err := s.chain.Stream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to stream chat chain output: %w", err)
	}

	return &turnStream{inner: stream}, nil
}

// turnStream adapts the model's message stream to plain text fragments.
type turnStream struct {
	inner *schema.StreamReader[*schema.Message]
}

// Recv returns the next text fragment, io.EOF at normal end. Empty
// fragments are passed through; the controller skips them.
func (t *turnStream) Recv() (string, error) {
	msg, err := t.inner.Recv()
	if err != nil {
		return "", err
	}
	if msg == nil {
		return "", nil
	}
	return msg.Content, nil
}

// Close releases the underlying stream.
func (t *turnStream) Close() {
	t.inner.Close()
}

// buildHistoryMessages maps the transcript onto wire turns. Thinking
// placeholders and system-role messages are filtered out; attachments ride
// along as base64 data-URI parts. The whole history is re-sent on every
// turn, with no truncation.
func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.IsThinking || msg.Role == chat.RoleSystem {
			continue
		}

		switch msg.Role {
		case chat.RoleUser:
			history = append(history, buildUserMessage(msg))
		case chat.RoleModel:
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return history
}

func buildUserMessage(msg chat.Message) *schema.Message {
	if len(msg.Attachments) == 0 {
		return schema.UserMessage(msg.Text)
	}

	parts := make([]schema.ChatMessagePart, 0, len(msg.Attachments)+1)
	if msg.Text != "" {
		parts = append(parts, schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeText,
			Text: msg.Text,
		})
	}
	for _, att := range msg.Attachments {
		parts = append(parts, attachmentPart(att))
	}

	return &schema.Message{Role: schema.User, MultiContent: parts}
}

func attachmentPart(att chat.Attachment) schema.ChatMessagePart {
	uri := "data:" + att.MimeType + ";base64," + att.Data

	if isImage(att.MimeType) {
		return schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{
				URL:      uri,
				MIMEType: att.MimeType,
			},
		}
	}

	return schema.ChatMessagePart{
		Type: schema.ChatMessagePartTypeFileURL,
		FileURL: &schema.ChatMessageFileURL{
			URL:      uri,
			Name:     att.Name,
			MIMEType: att.MimeType,
		},
	}
}

func isImage(mimeType string) bool {
	return len(mimeType) > 6 && mimeType[:6] == "image/"
}
