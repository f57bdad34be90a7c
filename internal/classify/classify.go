// Package classify maps a user utterance to the add, view or update action.
package classify

import (
	"context"
	"fmt"

	"github.com/ldi/taskdesk/embed/prompts"
	"github.com/ldi/taskdesk/internal/llm"
	"github.com/ldi/taskdesk/pkg/models"
	"go.uber.org/zap"
)

type Classifier struct {
	llm    llm.Completer
	logger *zap.Logger
}

func New(c llm.Completer, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{llm: c, logger: logger}
}

// Classify returns the action for utterance. Anything the model says other
// than exactly add, view or update, and any model failure, yields view.
func (c *Classifier) Classify(ctx context.Context, utterance string) models.Action {
	action, _ := c.ClassifyDetailed(ctx, utterance)
	return action
}

// ClassifyDetailed is Classify plus a user-facing warning when the model
// call failed or its answer was not a known action.
func (c *Classifier) ClassifyDetailed(ctx context.Context, utterance string) (models.Action, string) {
	out, err := c.llm.Complete(ctx, prompts.Classify, utterance)
	if err != nil {
		c.logger.Warn("classification failed, defaulting to view", zap.Error(err))
		return models.ActionView, fmt.Sprintf("Error classifying action: %v", err)
	}

	action, ok := models.ParseAction(out)
	if !ok {
		c.logger.Debug("unrecognised action, defaulting to view", zap.String("response", out))
		return models.ActionView, ""
	}
	return action, ""
}
