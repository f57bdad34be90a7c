package models

// TaskDraft is the structured task record extracted from free text. It is
// staged once to prefill task creation and discarded afterwards.
type TaskDraft struct {
	Title              string `json:"title"`
	Description        string `json:"description"`
	Category           string `json:"category"`
	Priority           string `json:"priority"`
	Deadline           string `json:"deadline"`
	AssignedTo         string `json:"assigned_to"`
	Status             string `json:"status"`
	Dependencies       string `json:"dependencies"`
	RequiredResources  string `json:"required_resources"`
	ExpectedOutcome    string `json:"expected_outcome"`
	ReviewProcess      string `json:"review_process"`
	PerformanceMetrics string `json:"performance_metrics"`
	EstimatedTime      string `json:"estimated_time"`
	Instructions       string `json:"instructions"`
}

// DraftFields is the number of fields every extracted draft carries.
const DraftFields = 14

// IsEmpty reports whether the draft is the zero record returned on failure.
func (d TaskDraft) IsEmpty() bool {
	return d == TaskDraft{}
}

// Fields returns the draft as a field-name keyed map, in the shape the
// extraction prompt asks the model for.
func (d TaskDraft) Fields() map[string]string {
	return map[string]string{
		"title":               d.Title,
		"description":         d.Description,
		"category":            d.Category,
		"priority":            d.Priority,
		"deadline":            d.Deadline,
		"assigned_to":         d.AssignedTo,
		"status":              d.Status,
		"dependencies":        d.Dependencies,
		"required_resources":  d.RequiredResources,
		"expected_outcome":    d.ExpectedOutcome,
		"review_process":      d.ReviewProcess,
		"performance_metrics": d.PerformanceMetrics,
		"estimated_time":      d.EstimatedTime,
		"instructions":        d.Instructions,
	}
}
