// Package reporter produces the AI-written market analysis that goes into
// each dispatch email. The model is opaque and potentially slow; callers own
// their own timeout policy via ctx.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/fiffu/marketoracle/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Generator interface {
	Generate(ctx context.Context, tickers []string, dateContext string) (string, error)
}

type openaiGenerator struct {
	cfg    *config.Config
	log    *zap.Logger
	client openai.Client
}

func NewGenerator(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, transport http.RoundTripper) Generator {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.AI.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Transport: transport}),
	}
	if base := strings.TrimRight(cfg.AI.BaseURL, "/"); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	return &openaiGenerator{cfg, log, openai.NewClient(opts...)}
}

func (g *openaiGenerator) Generate(ctx context.Context, tickers []string, dateContext string) (string, error) {
	if len(tickers) == 0 {
		return "", errors.New("no tickers to report on")
	}

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.cfg.AI.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(buildPrompt(tickers, dateContext)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("report generation: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("report generation: empty response from model")
	}

	return stripFences(completion.Choices[0].Message.Content), nil
}

func buildPrompt(tickers []string, dateContext string) string {
	return fmt.Sprintf(
		"Today is %s. As a senior market analyst, produce a change-driven analysis "+
			"for the following stocks: %s.\n\n"+
			"Tasks:\n"+
			"1. Explain the core reason behind each stock's movement in the most recent "+
			"trading session (earnings, industry news, macro data, technical breakout, etc).\n"+
			"2. If a stock barely moved, summarise what the market is watching or the key risk it faces.\n"+
			"3. Surface any time-sensitive headline worth knowing.\n\n"+
			"Format:\n"+
			"1. Keep it concise and to the point.\n"+
			"2. Output must be pure HTML, starting directly at <h3>.\n"+
			"3. Never use Markdown markers such as ** or #.\n"+
			"4. Embed news links inside their headline text, e.g. <a href='url'>headline</a>.\n"+
			"5. Separate stocks with <hr>.",
		dateContext, strings.Join(tickers, ", "),
	)
}

// Models wrap HTML output in Markdown code fences more often than not.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```html", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
