package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ldi/taskdesk/pkg/models"
)

const taskColumns = `
		T.ID, T.TITLE, T.DESCRIPTION, T.CATEGORY, T.PRIORITY, T.EXPECTED_OUTCOME,
		T.DEADLINE, T.ASSIGNED_TO, T.DEPENDENCIES, T.REQUIRED_RESOURCES,
		T.ESTIMATED_TIME, T.INSTRUCTIONS, T.REVIEW_PROCESS, T.PERFORMANCE_METRICS,
		T.SUPPORT_CONTACT, T.NOTES, T.STATUS, T.CREATED_AT, T.STARTED_AT,
		T.COMPLETED_AT, C.NAME`

// CreateTask inserts a new task and sets t.ID. Empty enum fields take the
// column defaults.
func (db *DB) CreateTask(ctx context.Context, t *models.Task) error {
	err := db.withTx(ctx, func(q Queryer) error {
		return db.createTask(ctx, q, t)
	})
	if err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

// CreateTaskForAssignee resolves assignee by name and inserts t in the same
// transaction. It returns ErrContactNotFound when nobody matches.
func (db *DB) CreateTaskForAssignee(ctx context.Context, t *models.Task, assignee string) error {
	err := db.withTx(ctx, func(q Queryer) error {
		c, err := db.getContactByName(ctx, q, assignee)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("%w: %q", ErrContactNotFound, assignee)
		}
		t.AssignedTo = c.ID
		t.AssigneeName = c.Name
		return db.createTask(ctx, q, t)
	})
	if err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) createTask(ctx context.Context, q Queryer, t *models.Task) error {
	if t.Title == "" {
		return fmt.Errorf("task title is required")
	}
	if t.Deadline.IsZero() {
		return fmt.Errorf("task deadline is required")
	}
	if t.Status == "" {
		t.Status = models.TaskStatusNotStarted
	}
	if !t.Status.Valid() {
		return fmt.Errorf("invalid task status %q", t.Status)
	}
	if t.Priority != "" && !t.Priority.Valid() {
		return fmt.Errorf("invalid task priority %q", t.Priority)
	}
	if t.EstimatedTime == "" {
		t.EstimatedTime = "1 day"
	}

	var priority any
	if t.Priority != "" {
		priority = string(t.Priority)
	}
	var support any
	if t.SupportContact != nil {
		support = *t.SupportContact
	}

	query, args := db.bind(`
		INSERT INTO TASKS (
			TITLE, DESCRIPTION, CATEGORY, PRIORITY, EXPECTED_OUTCOME, DEADLINE,
			ASSIGNED_TO, DEPENDENCIES, REQUIRED_RESOURCES, ESTIMATED_TIME,
			INSTRUCTIONS, REVIEW_PROCESS, PERFORMANCE_METRICS, SUPPORT_CONTACT,
			NOTES, STATUS
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ID`,
		t.Title, t.Description, string(t.Category), priority, t.ExpectedOutcome, t.Deadline,
		t.AssignedTo, t.Dependencies, t.RequiredResources, t.EstimatedTime,
		t.Instructions, t.ReviewProcess, t.PerformanceMetrics, support,
		t.Notes, string(t.Status))
	_, rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("failed to create task: no id returned")
	}
	t.ID = asInt64(rows[0][0])
	return nil
}

// GetTask retrieves a task by its ID. It returns nil, nil when the task does
// not exist.
func (db *DB) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	tasks, err := db.queryTasks(ctx, `
		SELECT `+taskColumns+`
		FROM TASKS T
		LEFT JOIN CONTACTS C ON T.ASSIGNED_TO = C.ID
		WHERE T.ID = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks[0], nil
}

// ListTasks returns tasks ordered by deadline, optionally filtered by status.
func (db *DB) ListTasks(ctx context.Context, status *models.TaskStatus) ([]*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM TASKS T
		LEFT JOIN CONTACTS C ON T.ASSIGNED_TO = C.ID
		WHERE 1=1`
	args := []any{}

	if status != nil {
		query += " AND T.STATUS = ?"
		args = append(args, string(*status))
	}

	query += " ORDER BY T.DEADLINE ASC, T.ID ASC"

	tasks, err := db.queryTasks(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTaskStatus moves a task to status. STARTED_AT and COMPLETED_AT are
// stamped by the schema triggers.
func (db *DB) UpdateTaskStatus(ctx context.Context, id int64, status models.TaskStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid task status %q", status)
	}

	var n int64
	err := db.withTx(ctx, func(q Queryer) error {
		query, args := db.bind(`UPDATE TASKS SET STATUS = ? WHERE ID = ?`, string(status), id)
		affected, err := q.Exec(ctx, query, args...)
		n = affected
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) queryTasks(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	_, rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	tasks := make([]*models.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, taskFromRow(r))
	}
	return tasks, nil
}

func taskFromRow(r []any) *models.Task {
	return &models.Task{
		ID:                 asInt64(r[0]),
		Title:              asString(r[1]),
		Description:        asString(r[2]),
		Category:           models.Category(asString(r[3])),
		Priority:           models.Priority(asString(r[4])),
		ExpectedOutcome:    asString(r[5]),
		Deadline:           asTime(r[6]),
		AssignedTo:         asInt64(r[7]),
		Dependencies:       asString(r[8]),
		RequiredResources:  asString(r[9]),
		EstimatedTime:      asString(r[10]),
		Instructions:       asString(r[11]),
		ReviewProcess:      asString(r[12]),
		PerformanceMetrics: asString(r[13]),
		SupportContact:     asNullInt64(r[14]),
		Notes:              asString(r[15]),
		Status:             models.TaskStatus(asString(r[16])),
		CreatedAt:          asTime(r[17]),
		StartedAt:          asNullTime(r[18]),
		CompletedAt:        asNullTime(r[19]),
		AssigneeName:       asString(r[20]),
	}
}

type TaskStats struct {
	Total    int                       `json:"total"`
	Overdue  int                       `json:"overdue"`
	ByStatus map[models.TaskStatus]int `json:"by_status"`
}

// Stats counts tasks in total, per status and overdue at now. Completed and
// approved tasks are never overdue.
func (db *DB) Stats(ctx context.Context, now time.Time) (*TaskStats, error) {
	stats := &TaskStats{ByStatus: make(map[models.TaskStatus]int, len(models.TaskStatuses))}
	for _, s := range models.TaskStatuses {
		stats.ByStatus[s] = 0
	}

	_, rows, err := db.query(ctx, `SELECT STATUS, COUNT(*) FROM TASKS GROUP BY STATUS`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	for _, r := range rows {
		n := int(asInt64(r[1]))
		stats.ByStatus[models.TaskStatus(asString(r[0]))] = n
		stats.Total += n
	}

	_, rows, err = db.query(ctx, `
		SELECT COUNT(*) FROM TASKS
		WHERE DEADLINE < ? AND STATUS NOT IN (?, ?)`,
		now, string(models.TaskStatusCompleted), string(models.TaskStatusReviewed))
	if err != nil {
		return nil, fmt.Errorf("failed to count overdue tasks: %w", err)
	}
	if len(rows) > 0 {
		stats.Overdue = int(asInt64(rows[0][0]))
	}
	return stats, nil
}
