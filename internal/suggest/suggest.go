// Package suggest recommends budget, tools and staffing for a task from the
// skills on record.
package suggest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/ldi/taskdesk/embed/prompts"
	"github.com/ldi/taskdesk/internal/llm"
	"github.com/ldi/taskdesk/pkg/models"
	"go.uber.org/zap"
)

var ErrEmptyTask = errors.New("task description is empty")

var promptTmpl = template.Must(template.New("suggest").Parse(prompts.Suggest))

// ContactLister supplies the team the model staffs from.
type ContactLister interface {
	ListContacts(ctx context.Context) ([]*models.Contact, error)
}

type Suggester struct {
	llm      llm.Completer
	contacts ContactLister
	logger   *zap.Logger
}

func New(c llm.Completer, contacts ContactLister, logger *zap.Logger) *Suggester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suggester{llm: c, contacts: contacts, logger: logger}
}

// Prompt renders the system prompt for the given team.
func Prompt(contacts []*models.Contact) (string, error) {
	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, struct{ Contacts []*models.Contact }{contacts}); err != nil {
		return "", fmt.Errorf("failed to render suggest prompt: %w", err)
	}
	return buf.String(), nil
}

// Suggest returns the model's Markdown recommendation for task.
func (s *Suggester) Suggest(ctx context.Context, task string) (string, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return "", ErrEmptyTask
	}

	contacts, err := s.contacts.ListContacts(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load team: %w", err)
	}
	system, err := Prompt(contacts)
	if err != nil {
		return "", err
	}

	out, err := s.llm.Complete(ctx, system, task)
	if err != nil {
		s.logger.Warn("resource suggestion failed", zap.Error(err))
		return "", fmt.Errorf("failed to get suggestion: %w", err)
	}
	return strings.TrimSpace(out), nil
}
