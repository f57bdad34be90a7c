package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ldi/taskdesk/internal/extract"
	"github.com/ldi/taskdesk/pkg/models"
	"go.uber.org/zap"
)

var ErrNoAssignee = errors.New("task draft has no assignee")

// CommitDraft consumes the draft staged for the session and inserts it as a
// task. Non-empty fields of patch override the staged values. On failure the
// draft stays staged.
func (a *Assistant) CommitDraft(ctx context.Context, sessionID string, patch *models.TaskDraft) (*models.Task, error) {
	draft, ok := a.sessions.TakeDraft(sessionID)
	if !ok {
		return nil, ErrNoDraft
	}
	merged := draft
	if patch != nil {
		merged = Merge(draft, *patch)
	}

	task, err := a.commit(ctx, merged)
	if err != nil {
		a.sessions.StageDraft(sessionID, draft)
		return nil, err
	}

	a.logger.Info("task created from draft",
		zap.String("session", sessionID),
		zap.Int64("task_id", task.ID),
		zap.String("assignee", task.AssigneeName))
	a.sessions.Append(sessionID, RoleAssistant,
		fmt.Sprintf("Created task #%d %q for %s", task.ID, task.Title, task.AssigneeName))
	return task, nil
}

func (a *Assistant) commit(ctx context.Context, d models.TaskDraft) (*models.Task, error) {
	if d.AssignedTo == "" {
		return nil, ErrNoAssignee
	}
	t := TaskFromDraft(d, a.now())
	if err := a.store.CreateTaskForAssignee(ctx, t, d.AssignedTo); err != nil {
		return nil, err
	}
	return t, nil
}

// TaskFromDraft converts a draft into an insertable task, resolving the
// deadline relative to now.
func TaskFromDraft(d models.TaskDraft, now time.Time) *models.Task {
	return &models.Task{
		Title:              d.Title,
		Description:        d.Description,
		Category:           models.Category(d.Category),
		Priority:           models.Priority(d.Priority),
		ExpectedOutcome:    d.ExpectedOutcome,
		Deadline:           extract.ResolveDeadline(d.Deadline, now),
		Dependencies:       d.Dependencies,
		RequiredResources:  d.RequiredResources,
		EstimatedTime:      d.EstimatedTime,
		Instructions:       d.Instructions,
		ReviewProcess:      d.ReviewProcess,
		PerformanceMetrics: d.PerformanceMetrics,
		Status:             models.TaskStatus(d.Status),
	}
}

// Merge returns base with every non-empty field of patch applied.
func Merge(base, patch models.TaskDraft) models.TaskDraft {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&base.Title, patch.Title)
	set(&base.Description, patch.Description)
	set(&base.Category, patch.Category)
	set(&base.Priority, patch.Priority)
	set(&base.Deadline, patch.Deadline)
	set(&base.AssignedTo, patch.AssignedTo)
	set(&base.Status, patch.Status)
	set(&base.Dependencies, patch.Dependencies)
	set(&base.RequiredResources, patch.RequiredResources)
	set(&base.ExpectedOutcome, patch.ExpectedOutcome)
	set(&base.ReviewProcess, patch.ReviewProcess)
	set(&base.PerformanceMetrics, patch.PerformanceMetrics)
	set(&base.EstimatedTime, patch.EstimatedTime)
	set(&base.Instructions, patch.Instructions)
	return base
}
