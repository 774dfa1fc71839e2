package bedrock

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/fwojciec/parley"
)

// Interface compliance check.
var _ parley.Backend = (*Client)(nil)

// ConverseAPI is the narrow slice of the Bedrock runtime client used here.
// Tests inject a stub through [WithAPI].
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client implements [parley.Backend] for the Bedrock Converse API. System
// prompt and tool specs are bound at construction.
type Client struct {
	api         ConverseAPI
	model       string
	region      string
	maxTokens   int
	temperature *float64
	topP        *float64
	system      []types.SystemContentBlock
	toolConfig  *types.ToolConfiguration
}

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the Bedrock model ID.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithRegion sets the AWS region, overriding the default config chain.
func WithRegion(region string) Option {
	return func(c *Client) { c.region = region }
}

// WithMaxTokens caps response length. Zero means the API default.
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) Option {
	return func(c *Client) { c.temperature = &temp }
}

// WithTopP sets nucleus sampling.
func WithTopP(p float64) Option {
	return func(c *Client) { c.topP = &p }
}

// WithAPI injects a preconfigured Converse client. When set, the AWS config
// chain is not consulted.
func WithAPI(api ConverseAPI) Option {
	return func(c *Client) { c.api = api }
}

// New creates a Bedrock [Client] bound to a system prompt and a final tool
// set. Credentials and region resolve through the standard AWS config chain
// unless [WithAPI] injects a client.
func New(ctx context.Context, system string, tools []parley.Tool, opts ...Option) (*Client, error) {
	c := &Client{model: defaultModel}
	for _, o := range opts {
		o(c)
	}

	toolConfig, err := ConvertTools(tools)
	if err != nil {
		return nil, err
	}
	c.toolConfig = toolConfig
	if system != "" {
		c.system = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}

	if c.api == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if c.region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(c.region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, parley.WrapError(parley.FaultUser, "load AWS config", err)
		}
		c.api = bedrockruntime.NewFromConfig(cfg)
	}
	return c, nil
}

// Converse sends the full history and returns the assistant's next message.
func (c *Client) Converse(ctx context.Context, history []parley.Message) (parley.Message, error) {
	msgs, err := ConvertMessages(history)
	if err != nil {
		return parley.Message{}, err
	}
	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(c.model),
		Messages:        msgs,
		System:          c.system,
		ToolConfig:      c.toolConfig,
		InferenceConfig: c.inferenceConfig(),
	})
	if err != nil {
		return parley.Message{}, &parley.Error{
			Owner:     parley.FaultLLM,
			Retriable: true,
			Message:   "converse request",
			Err:       err,
		}
	}
	return ParseMessage(out.Output)
}

func (c *Client) inferenceConfig() *types.InferenceConfiguration {
	if c.maxTokens == 0 && c.temperature == nil && c.topP == nil {
		return nil
	}
	cfg := &types.InferenceConfiguration{}
	if c.maxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(c.maxTokens))
	}
	if c.temperature != nil {
		cfg.Temperature = aws.Float32(float32(*c.temperature))
	}
	if c.topP != nil {
		cfg.TopP = aws.Float32(float32(*c.topP))
	}
	return cfg
}
