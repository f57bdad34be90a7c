// Package extract turns a free-text task description into a TaskDraft.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ldi/taskdesk/embed/prompts"
	"github.com/ldi/taskdesk/internal/jsonx"
	"github.com/ldi/taskdesk/internal/llm"
	"github.com/ldi/taskdesk/pkg/models"
	"go.uber.org/zap"
)

// ErrModel wraps failures of the completion call itself.
var ErrModel = errors.New("task extraction model call failed")

// ParseError reports a model reply that held no usable JSON object.
type ParseError struct {
	Raw     string
	Cleaned string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid JSON format in response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Default field values applied when the model omits a field or returns a
// value the task form cannot represent.
const (
	DefaultTitle         = "Unnamed Task"
	DefaultCategory      = models.CategoryWork
	DefaultPriority      = models.PriorityMedium
	DefaultStatus        = models.TaskStatusNotStarted
	DefaultEstimatedTime = "1 day"
)

type Extractor struct {
	llm    llm.Completer
	logger *zap.Logger
}

func New(c llm.Completer, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{llm: c, logger: logger}
}

// Extract asks the model for the task record described by description. On
// any failure it returns an empty draft with either an ErrModel-wrapped
// error or a *ParseError.
func (e *Extractor) Extract(ctx context.Context, description string) (models.TaskDraft, error) {
	raw, err := e.llm.Complete(ctx, prompts.Extract, description)
	if err != nil {
		e.logger.Warn("task extraction failed", zap.Error(err))
		return models.TaskDraft{}, fmt.Errorf("%w: %w", ErrModel, err)
	}

	draft, err := Parse(raw)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			e.logger.Warn("task extraction returned invalid JSON",
				zap.String("raw", pe.Raw),
				zap.String("cleaned", pe.Cleaned),
				zap.Error(pe.Err))
		}
		return models.TaskDraft{}, err
	}
	return draft, nil
}

// Parse extracts the draft from a raw model reply and applies defaults.
func Parse(raw string) (models.TaskDraft, error) {
	cleaned, ok := jsonx.FirstObject(raw)
	if !ok {
		cleaned = jsonx.StripFences(raw)
		return models.TaskDraft{}, &ParseError{Raw: raw, Cleaned: cleaned, Err: errors.New("no JSON object found")}
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return models.TaskDraft{}, &ParseError{Raw: raw, Cleaned: cleaned, Err: err}
	}

	get := func(key, def string) string {
		v, ok := fields[key]
		if !ok || v == nil {
			return def
		}
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
		return fmt.Sprint(v)
	}

	return models.TaskDraft{
		Title:              nonEmpty(get("title", DefaultTitle), DefaultTitle),
		Description:        get("description", ""),
		Category:           string(category(get("category", ""))),
		Priority:           string(priority(get("priority", ""))),
		Deadline:           get("deadline", ""),
		AssignedTo:         get("assigned_to", ""),
		Status:             string(status(get("status", ""))),
		Dependencies:       get("dependencies", ""),
		RequiredResources:  get("required_resources", ""),
		ExpectedOutcome:    get("expected_outcome", ""),
		ReviewProcess:      get("review_process", ""),
		PerformanceMetrics: get("performance_metrics", ""),
		EstimatedTime:      nonEmpty(get("estimated_time", DefaultEstimatedTime), DefaultEstimatedTime),
		Instructions:       get("instructions", ""),
	}, nil
}

func nonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func category(s string) models.Category {
	for _, c := range models.Categories {
		if strings.EqualFold(s, string(c)) {
			return c
		}
	}
	return DefaultCategory
}

func priority(s string) models.Priority {
	for _, p := range models.Priorities {
		if strings.EqualFold(s, string(p)) {
			return p
		}
	}
	return DefaultPriority
}

func status(s string) models.TaskStatus {
	for _, st := range models.TaskStatuses {
		if strings.EqualFold(s, string(st)) {
			return st
		}
	}
	return DefaultStatus
}
