// Package anthropic provides an [llm.Provider] implementation backed by the
// Anthropic Claude Messages API. It translates completion requests into
// anthropic.Message calls using github.com/anthropics/anthropic-sdk-go and
// maps responses (text, tool uses, usage) back into the generic structures.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/squadnet-ai/squadnet/pkg/provider/llm"
)

// MessagesClient captures the subset of the Anthropic SDK client used by the
// adapter. It is satisfied by *sdk.MessageService so callers can pass either
// a real client or a mock in tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the adapter.
type Options struct {
	// DefaultModel is the Claude model identifier used when a request does
	// not name one. Required.
	DefaultModel string

	// MaxTokens is the default completion cap when a request does not
	// specify MaxTokens. Default: 1024.
	MaxTokens int

	// Temperature is used when a request does not specify Temperature.
	Temperature float64
}

// Client implements [llm.Provider] on top of Anthropic Claude Messages.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTok       int
	temp         float64
}

// Compile-time check: Client must implement llm.Provider.
var _ llm.Provider = (*Client)(nil)

// New builds an Anthropic-backed provider from the provided Messages client
// and options.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model identifier is required")
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	return &Client{
		msg:          msg,
		defaultModel: opts.DefaultModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

// NewFromAPIKey constructs a provider using the default Anthropic HTTP client.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, opts)
}

// Complete issues a non-streaming Messages.New request and translates the
// response.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", llm.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("anthropic: messages.new: %w", err)
	}
	return translateResponse(msg), nil
}

func (c *Client) prepareRequest(req llm.CompletionRequest) (*sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}

	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}

	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(modelID),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	tools, err := encodeTools(req.Tools)
	if err != nil {
		return nil, err
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	if t := req.Temperature; t > 0 {
		params.Temperature = sdk.Float(t)
	} else if c.temp > 0 {
		params.Temperature = sdk.Float(c.temp)
	}
	return &params, nil
}

func encodeMessages(msgs []llm.Message) ([]sdk.MessageParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.ToolUses)+len(m.ToolResults))
		for _, tr := range m.ToolResults {
			blocks = append(blocks, sdk.NewToolResultBlock(tr.ToolUseID, tr.Content, tr.IsError))
		}
		if m.Content != "" {
			blocks = append(blocks, sdk.NewTextBlock(m.Content))
		}
		for _, tu := range m.ToolUses {
			if tu.Name == "" {
				return nil, errors.New("anthropic: tool use missing name")
			}
			blocks = append(blocks, sdk.NewToolUseBlock(tu.ID, tu.Input, tu.Name))
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case llm.RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		case llm.RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, errors.New("anthropic: at least one non-empty message is required")
	}
	return conversation, nil
}

func encodeTools(defs []llm.ToolDefinition) ([]sdk.ToolUnionParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	toolList := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		schema, err := toolInputSchema(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", def.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, def.Name)
		if u.OfTool != nil && def.Description != "" {
			u.OfTool.Description = sdk.String(def.Description)
		}
		toolList = append(toolList, u)
	}
	return toolList, nil
}

func toolInputSchema(schema map[string]any) (sdk.ToolInputSchemaParam, error) {
	if schema == nil {
		return sdk.ToolInputSchemaParam{}, nil
	}
	// Round-trip to detach from the caller's map.
	data, err := json.Marshal(schema)
	if err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

func translateResponse(msg *sdk.Message) *llm.CompletionResponse {
	resp := &llm.CompletionResponse{
		StopReason: llm.StopReason(msg.StopReason),
		Usage: llm.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "tool_use":
			resp.ToolUses = append(resp.ToolUses, llm.ToolUse{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}
	return resp
}

// isRateLimited reports whether the SDK error is throttling (429) or
// an overloaded upstream (529); both warrant a backed-off retry.
func isRateLimited(err error) bool {
	var apierr *sdk.Error
	if !errors.As(err, &apierr) {
		return false
	}
	return apierr.StatusCode == http.StatusTooManyRequests || apierr.StatusCode == 529
}
