package financial

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"

	"agenthub/internal/adapter/external/stocks"
	"agenthub/internal/shared"
)

// Instructions merge the web-search and finance roles into one persona.
const Instructions = `You are a financial research assistant.
Summarize analyst recommendations and the latest news for the given stock ticker using web search and financial tools.
Use get_stock_quote for prices and use tables to display the data.
Use web_search for news and analyst opinions and always include sources as full https links.
Answer in markdown.`

// QuoteFetcher returns market data for a symbol.
type QuoteFetcher interface {
	Quote(ctx context.Context, symbol string, days int) (stocks.Quote, error)
}

// QuoteInput is the get_stock_quote argument.
type QuoteInput struct {
	Symbol string `json:"symbol" jsonschema_description:"stock ticker symbol, for example NVDA"`
	Days   int    `json:"days,omitempty" jsonschema_description:"number of recent daily closes to include, default 5"`
}

// QuoteOutput is the get_stock_quote result. Lookup failures the model can
// recover from are reported in Error instead of aborting the run.
type QuoteOutput struct {
	Quote *stocks.Quote `json:"quote,omitempty"`
	Error string        `json:"error,omitempty"`
}

// NewQuoteTool exposes f as the get_stock_quote tool.
func NewQuoteTool(f QuoteFetcher) (tool.InvokableTool, error) {
	return utils.InferTool("get_stock_quote",
		"Get the latest price, daily change, 52-week range and recent closes for a stock ticker.",
		func(ctx context.Context, in *QuoteInput) (*QuoteOutput, error) {
			q, err := f.Quote(ctx, in.Symbol, in.Days)
			switch {
			case err == nil:
				return &QuoteOutput{Quote: &q}, nil
			case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrValidation):
				return &QuoteOutput{Error: shared.Message(err)}, nil
			default:
				return nil, err
			}
		})
}

// NewSearchTool creates the DuckDuckGo text search tool.
func NewSearchTool(ctx context.Context, maxResults int, timeout time.Duration) (tool.InvokableTool, error) {
	return duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   "web_search",
		ToolDesc:   "Search the web for news, analyst recommendations and other information.",
		MaxResults: maxResults,
		Timeout:    timeout,
	})
}

// NewReactAgent builds the tool-calling agent behind Summarize.
func NewReactAgent(ctx context.Context, cm model.ToolCallingChatModel, tools ...tool.BaseTool) (*react.Agent, error) {
	a, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: cm,
		ToolsConfig:      compose.ToolsNodeConfig{Tools: tools},
		MessageModifier: func(_ context.Context, msgs []*schema.Message) []*schema.Message {
			return append([]*schema.Message{schema.SystemMessage(Instructions)}, msgs...)
		},
		MaxStep: 12,
	})
	if err != nil {
		return nil, shared.Wrap(err, "financial react agent")
	}
	return a, nil
}
