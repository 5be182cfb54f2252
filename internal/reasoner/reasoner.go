// Package reasoner turns a classified leak into user-facing reasoning and an
// actionable step. Implementations are best effort: the engine keeps its own
// heuristic text when a reasoner fails.
package reasoner

import (
	"context"

	"leakwatch/internal/core"
)

// Reasoner explains one classified leak.
type Reasoner interface {
	Explain(ctx context.Context, pattern core.Pattern, leak core.Leak) (reasoning, actionableStep string, err error)
}

// Noop returns empty strings, leaving the classifier's heuristic text in
// place. Used when no API key is configured and in tests.
type Noop struct{}

func (Noop) Explain(context.Context, core.Pattern, core.Leak) (string, string, error) {
	return "", "", nil
}
