package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ldi/taskdesk/pkg/models"
)

func newContact(t *testing.T, db *DB, name, phone string) *models.Contact {
	t.Helper()
	c := &models.Contact{Name: name, Phone: phone, Skills: "Go"}
	if err := db.CreateContact(context.Background(), c); err != nil {
		t.Fatalf("Failed to create contact: %v", err)
	}
	return c
}

func TestTaskCRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	owner := newContact(t, db, "Asha", "9811122233")

	deadline := time.Date(2030, 1, 2, 15, 4, 0, 0, time.UTC)
	task := &models.Task{
		Title:       "Write report",
		Description: "Quarterly report",
		Category:    models.CategoryWork,
		Priority:    models.PriorityHigh,
		Deadline:    deadline,
		AssignedTo:  owner.ID,
	}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if task.ID == 0 {
		t.Fatal("Expected task ID to be set")
	}

	got, err := db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if got == nil {
		t.Fatal("Expected task, got nil")
	}
	if got.Title != "Write report" || got.AssigneeName != "Asha" {
		t.Errorf("Unexpected task: %+v", got)
	}
	if got.Status != models.TaskStatusNotStarted {
		t.Errorf("Expected default status %q, got %q", models.TaskStatusNotStarted, got.Status)
	}
	if got.EstimatedTime != "1 day" {
		t.Errorf("Expected default estimated time, got %q", got.EstimatedTime)
	}
	if !got.Deadline.Equal(deadline) {
		t.Errorf("Expected deadline %v, got %v", deadline, got.Deadline)
	}
	if got.StartedAt != nil || got.CompletedAt != nil {
		t.Errorf("Expected no lifecycle timestamps on a new task")
	}

	// Status changes stamp lifecycle timestamps.
	if err := db.UpdateTaskStatus(ctx, task.ID, models.TaskStatusInProgress); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}
	if err := db.UpdateTaskStatus(ctx, task.ID, models.TaskStatusCompleted); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}
	got, err = db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Errorf("Expected started and completed timestamps, got %v / %v", got.StartedAt, got.CompletedAt)
	}

	if err := db.UpdateTaskStatus(ctx, 999, models.TaskStatusOnHold); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
	if err := db.UpdateTaskStatus(ctx, task.ID, "Done"); err == nil {
		t.Error("Expected error for invalid status")
	}
}

func TestGetTaskNotFound(t *testing.T) {
	db := newTestDB(t)

	got, err := db.GetTask(context.Background(), 42)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil task, got %+v", got)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := newContact(t, db, "Asha", "9811122233")

	tests := []struct {
		name string
		task models.Task
	}{
		{"missing title", models.Task{Deadline: time.Now(), AssignedTo: owner.ID}},
		{"missing deadline", models.Task{Title: "x", AssignedTo: owner.ID}},
		{"bad status", models.Task{Title: "x", Deadline: time.Now(), AssignedTo: owner.ID, Status: "Done"}},
		{"bad priority", models.Task{Title: "x", Deadline: time.Now(), AssignedTo: owner.ID, Priority: "Urgent"}},
		{"unknown assignee", models.Task{Title: "x", Deadline: time.Now(), AssignedTo: 999}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := tt.task
			if err := db.CreateTask(ctx, &task); err == nil {
				t.Errorf("Expected error")
			}
		})
	}
}

func TestCreateTaskForAssignee(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := newContact(t, db, "John Doe", "5551234123")

	task := &models.Task{Title: "Plan", Deadline: time.Now().Add(24 * time.Hour)}
	if err := db.CreateTaskForAssignee(ctx, task, "john doe"); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if task.AssignedTo != owner.ID {
		t.Errorf("Expected assignee %d, got %d", owner.ID, task.AssignedTo)
	}

	orphan := &models.Task{Title: "Orphan", Deadline: time.Now()}
	err := db.CreateTaskForAssignee(ctx, orphan, "Nobody")
	if !errors.Is(err, ErrContactNotFound) {
		t.Fatalf("Expected ErrContactNotFound, got %v", err)
	}

	tasks, err := db.ListTasks(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("Expected the failed insert to roll back, got %d tasks", len(tasks))
	}
}

func TestListTasks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if _, err := db.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	all, err := db.ListTasks(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to list tasks: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("Expected 5 tasks, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Deadline.Before(all[i-1].Deadline) {
			t.Errorf("Expected tasks ordered by deadline")
		}
	}

	status := models.TaskStatusInProgress
	inProgress, err := db.ListTasks(ctx, &status)
	if err != nil {
		t.Fatalf("Failed to list tasks: %v", err)
	}
	if len(inProgress) != 2 {
		t.Errorf("Expected 2 in-progress tasks, got %d", len(inProgress))
	}
	for _, task := range inProgress {
		if task.Status != models.TaskStatusInProgress {
			t.Errorf("Unexpected status %q", task.Status)
		}
	}
}

func TestStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if _, err := db.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	// Every seeded deadline falls in March 2025.
	now := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	stats, err := db.Stats(ctx, now)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 5 {
		t.Errorf("Expected 5 total, got %d", stats.Total)
	}
	// Project Planning, Database Setup and UI Design are past due and open.
	if stats.Overdue != 3 {
		t.Errorf("Expected 3 overdue, got %d", stats.Overdue)
	}
	if stats.ByStatus[models.TaskStatusCompleted] != 1 {
		t.Errorf("Expected 1 completed, got %d", stats.ByStatus[models.TaskStatusCompleted])
	}
	if _, ok := stats.ByStatus[models.TaskStatusReviewed]; !ok {
		t.Errorf("Expected every status to be present in the breakdown")
	}
}

func TestSeedIsSkippedWhenContactsExist(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seeded, err := db.Seed(ctx)
	if err != nil || !seeded {
		t.Fatalf("Expected first seed to run, got %v, %v", seeded, err)
	}
	seeded, err = db.Seed(ctx)
	if err != nil || seeded {
		t.Fatalf("Expected second seed to be skipped, got %v, %v", seeded, err)
	}

	contacts, err := db.ListContacts(ctx)
	if err != nil {
		t.Fatalf("Failed to list contacts: %v", err)
	}
	if len(contacts) != 8 {
		t.Errorf("Expected 8 contacts, got %d", len(contacts))
	}
}
