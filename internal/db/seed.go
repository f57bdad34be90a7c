package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ldi/taskdesk/pkg/models"
)

var seedContacts = []models.Contact{
	{Name: "Ansh", Phone: "9876543210", Email: "vivekchoudhary75@gmail.com", Address: "123, Lorem Ipsum Street, New York, NY 10001", Skills: "Project Management"},
	{Name: "Vivek", Phone: "9999701072", Email: "vivekchoudhary765@gmail.com", Address: "Delhi", Skills: "Python, SQL, Data Analysis"},
	{Name: "Akshit", Phone: "9999701034", Email: "vivekchoudhary565@gmail.com", Address: "Delhi", Skills: "Web Development, JavaScript"},
	{Name: "Vivek Choudhary", Phone: "9999701071", Email: "vivekchoudhary789@gmail.com", Address: "Delhi 110088", Skills: "Team Leadership, Strategic Planning"},
	{Name: "John Doe", Phone: "5551234123", Email: "john@example.com", Address: "123 Main St", Skills: "UI/UX Design, Graphic Design"},
	{Name: "Ishani", Phone: "1234567890", Email: "john.new@example.com", Address: "456 New St", Skills: "Digital Marketing, SEO"},
	{Name: "Vaibhav", Phone: "9999807097", Email: "vaibhav@gmail.com", Address: "Jaipur", Skills: "Cloud Computing, DevOps"},
	{Name: "Mohit", Phone: "9920128977", Email: "mohit@gmail.com", Address: "Mumbai", Skills: "Mobile Development, Flutter"},
}

// seedTask is a sample task keyed by the assignee's phone number.
type seedTask struct {
	phone string
	task  models.Task
}

func seedTasks() []seedTask {
	at := func(s string) time.Time {
		t, _ := time.Parse("2006-01-02 15:04", s)
		return t
	}
	return []seedTask{
		{"9999701072", models.Task{
			Title: "Project Planning", Description: "Plan the initial phase of the project",
			Category: models.CategoryProject, Priority: models.PriorityHigh,
			ExpectedOutcome: "Completed project plan document", Deadline: at("2025-03-01 23:59"),
			Dependencies: "None", RequiredResources: "Project management software", EstimatedTime: "1 week",
			Instructions: "1. Define scope\n2. Identify stakeholders", ReviewProcess: "Review by project manager",
			PerformanceMetrics: "Adherence to timeline", Notes: "Critical initial task",
			Status: models.TaskStatusInProgress,
		}},
		{"9999701034", models.Task{
			Title: "Database Setup", Description: "Set up the database schema and tables",
			Category: models.CategoryWork, Priority: models.PriorityMedium,
			ExpectedOutcome: "Functional database system", Deadline: at("2025-03-05 18:00"),
			Dependencies: "Project Planning", RequiredResources: "SQL tools, Server access", EstimatedTime: "3 days",
			Instructions: "1. Create schema\n2. Define tables", ReviewProcess: "Review by lead developer",
			PerformanceMetrics: "Schema normalization", Notes: "Ensure backup strategy",
			Status: models.TaskStatusNotStarted,
		}},
		{"9999807097", models.Task{
			Title: "UI Design", Description: "Design the user interface",
			Category: models.CategoryProject, Priority: models.PriorityMedium,
			ExpectedOutcome: "Approved UI mockups", Deadline: at("2025-03-10 12:00"),
			Dependencies: "Database Setup", RequiredResources: "Design software", EstimatedTime: "2 weeks",
			Instructions: "1. Wireframe\n2. Prototype", ReviewProcess: "Client review",
			PerformanceMetrics: "User feedback score", Notes: "Mobile-first approach",
			Status: models.TaskStatusInProgress,
		}},
		{"9920128977", models.Task{
			Title: "Testing", Description: "Perform unit and integration testing",
			Category: models.CategoryWork, Priority: models.PriorityHigh,
			ExpectedOutcome: "Test report", Deadline: at("2025-03-15 17:00"),
			Dependencies: "UI Design", RequiredResources: "Testing frameworks", EstimatedTime: "5 days",
			Instructions: "1. Write test cases\n2. Execute tests", ReviewProcess: "QA manager review",
			PerformanceMetrics: "Bug count", Notes: "Automate where possible",
			Status: models.TaskStatusNotStarted,
		}},
		{"5551234123", models.Task{
			Title: "Deployment", Description: "Deploy application to production",
			Category: models.CategoryWork, Priority: models.PriorityHigh,
			ExpectedOutcome: "Successful deployment", Deadline: at("2025-03-20 20:00"),
			Dependencies: "Testing", RequiredResources: "Cloud access", EstimatedTime: "2 days",
			Instructions: "1. Prepare environment\n2. Deploy", ReviewProcess: "Ops team review",
			PerformanceMetrics: "Downtime duration", Notes: "Monitor post-deployment",
			Status: models.TaskStatusCompleted,
		}},
	}
}

// Seed inserts the sample contacts and tasks. It does nothing and returns
// false when CONTACTS already has rows.
func (db *DB) Seed(ctx context.Context) (bool, error) {
	seeded := false
	err := db.withTx(ctx, func(q Queryer) error {
		_, rows, err := q.Query(ctx, `SELECT COUNT(*) FROM CONTACTS`)
		if err != nil {
			return fmt.Errorf("failed to count contacts: %w", err)
		}
		if len(rows) > 0 && asInt64(rows[0][0]) > 0 {
			return nil
		}

		ids := make(map[string]int64, len(seedContacts))
		for _, c := range seedContacts {
			c := c
			if err := db.createContact(ctx, q, &c); err != nil {
				return fmt.Errorf("failed to seed contact %s: %w", c.Name, err)
			}
			ids[c.Phone] = c.ID
		}

		for _, st := range seedTasks() {
			t := st.task
			t.AssignedTo = ids[st.phone]
			support := t.AssignedTo
			t.SupportContact = &support
			if err := db.createTask(ctx, q, &t); err != nil {
				return fmt.Errorf("failed to seed task %s: %w", t.Title, err)
			}
		}
		seeded = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if seeded {
		db.triggerChange(ctx)
	}
	return seeded, nil
}
