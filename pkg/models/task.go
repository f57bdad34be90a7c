package models

import "time"

type TaskStatus string

const (
	TaskStatusNotStarted TaskStatus = "Not Started"
	TaskStatusInProgress TaskStatus = "In Progress"
	TaskStatusOnHold     TaskStatus = "On Hold"
	TaskStatusCompleted  TaskStatus = "Completed"
	TaskStatusReviewed   TaskStatus = "Reviewed & Approved"
)

// TaskStatuses lists the statuses accepted by the TASKS check constraint.
var TaskStatuses = []TaskStatus{
	TaskStatusNotStarted,
	TaskStatusInProgress,
	TaskStatusOnHold,
	TaskStatusCompleted,
	TaskStatusReviewed,
}

// Valid reports whether s is one of TaskStatuses.
func (s TaskStatus) Valid() bool {
	for _, v := range TaskStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Done reports whether the task no longer counts towards overdue work.
func (s TaskStatus) Done() bool {
	return s == TaskStatusCompleted || s == TaskStatusReviewed
}

type Category string

const (
	CategoryWork     Category = "Work"
	CategoryPersonal Category = "Personal"
	CategoryProject  Category = "Project"
	CategoryOther    Category = "Other"
)

var Categories = []Category{CategoryWork, CategoryPersonal, CategoryProject, CategoryOther}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

func (p Priority) Valid() bool {
	for _, v := range Priorities {
		if p == v {
			return true
		}
	}
	return false
}

type Task struct {
	ID                 int64      `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Category           Category   `json:"category"`
	Priority           Priority   `json:"priority"`
	ExpectedOutcome    string     `json:"expected_outcome"`
	Deadline           time.Time  `json:"deadline"`
	AssignedTo         int64      `json:"assigned_to"`
	Dependencies       string     `json:"dependencies"`
	RequiredResources  string     `json:"required_resources"`
	EstimatedTime      string     `json:"estimated_time"`
	Instructions       string     `json:"instructions"`
	ReviewProcess      string     `json:"review_process"`
	PerformanceMetrics string     `json:"performance_metrics"`
	SupportContact     *int64     `json:"support_contact"`
	Notes              string     `json:"notes"`
	Status             TaskStatus `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	StartedAt          *time.Time `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at"`

	// AssigneeName is a helper field for joined queries
	AssigneeName string `json:"assignee_name,omitempty"`
}
