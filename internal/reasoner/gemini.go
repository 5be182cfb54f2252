package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"leakwatch/internal/core"
	"leakwatch/internal/log"
)

// Gemini explains leaks through the Gemini API. Models are tried in order
// until one answers; the per-call timeout bounds each attempt.
type Gemini struct {
	client  *genai.Client
	models  []string
	timeout time.Duration
	logger  *log.Logger
}

// NewGemini builds a Gemini reasoner. The API key comes from the client
// config; an empty model list is rejected.
func NewGemini(ctx context.Context, apiKey string, models []string, timeout time.Duration, logger *log.Logger) (*Gemini, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("reasoner: no models configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("reasoner: create genai client: %w", err)
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentReasoner)
	}
	return &Gemini{client: client, models: models, timeout: timeout, logger: logger}, nil
}

type explanation struct {
	Reasoning      string `json:"reasoning"`
	ActionableStep string `json:"actionable_step"`
}

// Explain asks each configured model in turn and returns the first valid
// strict-JSON answer.
func (g *Gemini) Explain(ctx context.Context, pattern core.Pattern, leak core.Leak) (string, string, error) {
	prompt := buildExplainPrompt(pattern, leak)
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	var lastErr error
	for _, model := range g.models {
		reasoning, step, err := g.generate(ctx, model, contents)
		if err == nil {
			return reasoning, step, nil
		}
		lastErr = err
		g.logger.WarnContext(ctx, "Model attempt failed",
			log.FieldModel, model,
			log.FieldMerchantHint, string(pattern.Key),
			log.FieldError, err.Error())
		if ctx.Err() != nil {
			break
		}
	}
	return "", "", fmt.Errorf("reasoner: all models failed: %w", lastErr)
}

func (g *Gemini) generate(ctx context.Context, model string, contents []*genai.Content) (string, string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return "", "", fmt.Errorf("generate content: %w", err)
	}
	rawText := resp.Text()
	if rawText == "" {
		return "", "", fmt.Errorf("empty response from model")
	}

	var exp explanation
	if err := json.Unmarshal([]byte(cleanModelJSON(rawText)), &exp); err != nil {
		return "", "", fmt.Errorf("unmarshal JSON: %w", err)
	}
	if exp.Reasoning == "" || exp.ActionableStep == "" {
		return "", "", fmt.Errorf("incomplete explanation from model")
	}
	return exp.Reasoning, exp.ActionableStep, nil
}

// buildExplainPrompt renders the evidence into a strict-JSON instruction. The
// model sees statistics only, never raw narrations.
func buildExplainPrompt(pattern core.Pattern, leak core.Leak) string {
	ev := pattern.Evidence
	var b strings.Builder
	b.WriteString("You are a personal finance advisor explaining a detected spending leak.\n\n")
	b.WriteString("Leak:\n")
	fmt.Fprintf(&b, "- merchant: %s\n", string(pattern.Key))
	fmt.Fprintf(&b, "- category: %s\n", leak.Category)
	fmt.Fprintf(&b, "- probability: %.2f\n", leak.Probability)
	fmt.Fprintf(&b, "- estimated_annual_saving: %s\n", leak.EstimatedAnnualSaving)
	b.WriteString("\nEvidence:\n")
	fmt.Fprintf(&b, "- transaction_count: %d\n", ev.TxnCount)
	fmt.Fprintf(&b, "- average_amount: %s\n", core.Money{Cents: int64(ev.AvgCents)})
	fmt.Fprintf(&b, "- first_amount: %s\n", core.Money{Cents: ev.FirstAmountCents})
	fmt.Fprintf(&b, "- last_amount: %s\n", core.Money{Cents: ev.LastAmountCents})
	fmt.Fprintf(&b, "- mean_gap_days: %.1f\n", ev.GapMeanDays)
	fmt.Fprintf(&b, "- observed_span_days: %.0f\n", ev.SpanDays)
	fmt.Fprintf(&b, "- days_since_last: %.0f\n", ev.RecencyDays)
	fmt.Fprintf(&b, "- spending_category: %s > %s > %s\n", ev.ModalTags.Level1, ev.ModalTags.Level2, ev.ModalTags.Level3)
	b.WriteString("\nTask:\n")
	b.WriteString("- Write a short, concrete explanation of why this looks like a money leak.\n")
	b.WriteString("- Suggest one specific action the user can take.\n")
	b.WriteString("- Output STRICT JSON only (no comments, no extra text).\n")
	b.WriteString("- Do NOT wrap the response in code fences.\n")
	b.WriteString("\nOutput format:\n")
	b.WriteString(`{"reasoning": "...", "actionable_step": "..."}`)
	b.WriteString("\n")
	return b.String()
}

// cleanModelJSON strips Markdown fences when the model ignores the raw-JSON
// instruction.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
