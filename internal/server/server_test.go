package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ldi/taskdesk/internal/assistant"
	"github.com/ldi/taskdesk/internal/db"
	"github.com/ldi/taskdesk/internal/llm/llmtest"
	"github.com/ldi/taskdesk/internal/synth"
	"github.com/ldi/taskdesk/pkg/models"
)

func newTestServer(t *testing.T, fake *llmtest.Fake) (*Server, *db.DB) {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	if err := database.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if _, err := database.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	a := assistant.NewPipeline(fake, database, synth.SQLite, true, nil)
	srv := NewServer(database, a, nil)
	srv.now = func() time.Time { return time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC) }
	return srv, database
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_API(t *testing.T) {
	srv, _ := newTestServer(t, llmtest.New())
	h := srv.Handler()

	t.Run("GET /api/tasks", func(t *testing.T) {
		w := do(t, h, "GET", "/api/tasks", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status OK, got %v", w.Code)
		}
		var tasks []*models.Task
		if err := json.Unmarshal(w.Body.Bytes(), &tasks); err != nil {
			t.Fatalf("Failed to unmarshal tasks: %v", err)
		}
		if len(tasks) != 5 {
			t.Errorf("Expected 5 tasks, got %d", len(tasks))
		} else if tasks[0].Title != "Project Planning" {
			t.Errorf("Expected earliest deadline first, got %s", tasks[0].Title)
		}
	})

	t.Run("GET /api/tasks?status", func(t *testing.T) {
		w := do(t, h, "GET", "/api/tasks?status=In+Progress", nil)
		var tasks []*models.Task
		if err := json.Unmarshal(w.Body.Bytes(), &tasks); err != nil {
			t.Fatalf("Failed to unmarshal tasks: %v", err)
		}
		if len(tasks) != 2 {
			t.Errorf("Expected 2 in-progress tasks, got %d", len(tasks))
		}

		if w := do(t, h, "GET", "/api/tasks?status=Blocked", nil); w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for unknown status, got %v", w.Code)
		}
	})

	t.Run("GET /api/contacts", func(t *testing.T) {
		w := do(t, h, "GET", "/api/contacts", nil)
		var contacts []*models.Contact
		if err := json.Unmarshal(w.Body.Bytes(), &contacts); err != nil {
			t.Fatalf("Failed to unmarshal contacts: %v", err)
		}
		if len(contacts) != 8 {
			t.Errorf("Expected 8 contacts, got %d", len(contacts))
		}
	})

	t.Run("GET /api/stats", func(t *testing.T) {
		w := do(t, h, "GET", "/api/stats", nil)
		var stats db.TaskStats
		if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
			t.Fatalf("Failed to unmarshal stats: %v", err)
		}
		if stats.Total != 5 {
			t.Errorf("Expected 5 tasks, got %d", stats.Total)
		}
		if stats.Overdue != 3 {
			t.Errorf("Expected 3 overdue tasks, got %d", stats.Overdue)
		}
	})

	t.Run("unknown route", func(t *testing.T) {
		if w := do(t, h, "GET", "/api/nope", nil); w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %v", w.Code)
		}
	})

	t.Run("GET /health", func(t *testing.T) {
		if w := do(t, h, "GET", "/health", nil); w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %v", w.Code)
		}
	})
}

func TestServer_Ask(t *testing.T) {
	fake := llmtest.New().
		On("Classify the user's database request", "view").
		On("Write exactly one SELECT statement", "SELECT NAME FROM CONTACTS WHERE LOWER(NAME) LIKE LOWER('%vivek%') ORDER BY ID")
	srv, _ := newTestServer(t, fake)
	h := srv.Handler()

	w := do(t, h, "POST", "/api/ask", askRequest{SessionID: "web", Text: "find Vivek"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %v: %s", w.Code, w.Body.String())
	}

	var resp struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
		State     string `json:"state"`
		Action    string `json:"action"`
		Query     struct {
			SQL string `json:"sql"`
		} `json:"query"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal reply: %v", err)
	}
	if resp.SessionID != "web" || resp.Action != "view" || resp.State != "idle" {
		t.Errorf("Unexpected reply: %+v", resp)
	}
	if !strings.HasPrefix(resp.Text, "Found 2 results:") {
		t.Errorf("Unexpected text: %s", resp.Text)
	}
	if !strings.HasPrefix(resp.Query.SQL, "SELECT") {
		t.Errorf("Unexpected SQL: %s", resp.Query.SQL)
	}

	w = do(t, h, "GET", "/api/sessions/web/transcript", nil)
	var transcript []assistant.Message
	if err := json.Unmarshal(w.Body.Bytes(), &transcript); err != nil {
		t.Fatalf("Failed to unmarshal transcript: %v", err)
	}
	if len(transcript) != 2 || transcript[0].Content != "find Vivek" {
		t.Errorf("Unexpected transcript: %+v", transcript)
	}

	if w := do(t, h, "POST", "/api/ask", askRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty text, got %v", w.Code)
	}
}

func TestServer_AskGeneratesSessionID(t *testing.T) {
	fake := llmtest.New().On("Analyze the task description", `{"title": "Plan offsite", "assigned_to": "Ansh"}`)
	srv, database := newTestServer(t, fake)
	h := srv.Handler()

	w := do(t, h, "POST", "/api/ask", askRequest{Text: "new task: plan the offsite"})
	var resp struct {
		SessionID string            `json:"session_id"`
		State     string            `json:"state"`
		Draft     *models.TaskDraft `json:"draft"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal reply: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("Expected a generated session id")
	}
	if resp.State != "awaiting_form_prefill" || resp.Draft == nil {
		t.Fatalf("Expected a staged draft, got %+v", resp)
	}

	w = do(t, h, "POST", "/api/drafts/commit", map[string]string{"session_id": resp.SessionID, "deadline": "2025-04-01"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %v: %s", w.Code, w.Body.String())
	}
	var task models.Task
	if err := json.Unmarshal(w.Body.Bytes(), &task); err != nil {
		t.Fatalf("Failed to unmarshal task: %v", err)
	}
	if task.Title != "Plan offsite" || task.AssigneeName != "Ansh" {
		t.Errorf("Unexpected task: %+v", task)
	}

	got, err := database.GetTask(context.Background(), task.ID)
	if err != nil || got == nil {
		t.Fatalf("Failed to get task: %v", err)
	}

	w = do(t, h, "POST", "/api/drafts/commit", map[string]string{"session_id": resp.SessionID})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after the draft was consumed, got %v", w.Code)
	}
}

func TestServer_CommitDraftUnknownAssignee(t *testing.T) {
	srv, _ := newTestServer(t, llmtest.New())
	srv.assistant.Sessions().StageDraft("s", models.TaskDraft{Title: "X", AssignedTo: "Nobody", Category: "Work", Priority: "Low", Status: "Not Started"})

	w := do(t, srv.Handler(), "POST", "/api/drafts/commit", map[string]string{"session_id": "s"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422, got %v: %s", w.Code, w.Body.String())
	}
}

func TestServer_TaskStatus(t *testing.T) {
	srv, _ := newTestServer(t, llmtest.New())
	h := srv.Handler()

	w := do(t, h, "PATCH", "/api/tasks/2/status", map[string]string{"status": "Completed"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %v: %s", w.Code, w.Body.String())
	}
	var task models.Task
	if err := json.Unmarshal(w.Body.Bytes(), &task); err != nil {
		t.Fatalf("Failed to unmarshal task: %v", err)
	}
	if task.Status != models.TaskStatusCompleted || task.CompletedAt == nil {
		t.Errorf("Expected completed task with COMPLETED_AT, got %+v", task)
	}

	tests := []struct {
		path string
		body any
		want int
	}{
		{"/api/tasks/999/status", map[string]string{"status": "On Hold"}, http.StatusNotFound},
		{"/api/tasks/2/status", map[string]string{"status": "Done"}, http.StatusBadRequest},
		{"/api/tasks/abc/status", map[string]string{"status": "On Hold"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := do(t, h, "PATCH", tt.path, tt.body); w.Code != tt.want {
			t.Errorf("PATCH %s: expected %d, got %d", tt.path, tt.want, w.Code)
		}
	}
}

func TestServer_ShutdownBeforeListen(t *testing.T) {
	srv, _ := newTestServer(t, llmtest.New())

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(context.Background(), "127.0.0.1:0") }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil after early shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe kept running after Shutdown")
	}
}

func TestServer_ListenAndShutdown(t *testing.T) {
	srv, _ := newTestServer(t, llmtest.New())

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(context.Background(), "127.0.0.1:0") }()

	// Shutdown may land before or after the listener is up; both must stop it.
	time.Sleep(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after Shutdown")
	}
}

func TestServer_ListenSkippedForDoneContext(t *testing.T) {
	srv, _ := newTestServer(t, llmtest.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := srv.ListenAndServe(ctx, "127.0.0.1:0"); err != nil {
		t.Errorf("Expected nil for a cancelled context, got %v", err)
	}
}
