package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ldi/taskdesk/internal/assistant"
	"github.com/ldi/taskdesk/internal/classify"
	"github.com/ldi/taskdesk/internal/db"
	"github.com/ldi/taskdesk/internal/extract"
	"github.com/ldi/taskdesk/internal/format"
	"github.com/ldi/taskdesk/internal/sqlguard"
	"github.com/ldi/taskdesk/internal/synth"
	"github.com/ldi/taskdesk/pkg/models"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const defaultSession = "default"

// Services are the pipeline components exposed as tools.
type Services struct {
	DB         *db.DB
	Assistant  *assistant.Assistant
	Classifier *classify.Classifier
	Synth      *synth.Synthesizer
	Extractor  *extract.Extractor
	Formatter  *format.Formatter
	Guard      sqlguard.Guard
}

// NewServer creates a new MCP server.
func NewServer(svc Services) *server.MCPServer {
	if svc.Formatter == nil {
		svc.Formatter = format.New()
	}
	s := server.NewMCPServer("taskdesk", "0.1.0")

	// Pipeline steps
	s.AddTool(mcp.NewTool("classify",
		mcp.WithDescription("Classify a request as add, view or update."),
		mcp.WithString("text", mcp.Description("Natural-language request"), mcp.Required()),
	), classifyHandler(svc))

	s.AddTool(mcp.NewTool("synthesize",
		mcp.WithDescription("Generate one SQL statement for a request and action."),
		mcp.WithString("action", mcp.Description("add|view|update"), mcp.Required()),
		mcp.WithString("text", mcp.Description("Natural-language request"), mcp.Required()),
	), synthesizeHandler(svc))

	s.AddTool(mcp.NewTool("extract",
		mcp.WithDescription("Extract a structured task draft from a description. The draft is staged for the session."),
		mcp.WithString("text", mcp.Description("Task description"), mcp.Required()),
		mcp.WithString("session_id", mcp.Description("Session ID for staging the draft (defaults to 'default').")),
	), extractHandler(svc))

	s.AddTool(mcp.NewTool("execute",
		mcp.WithDescription("Execute one SQL statement against CONTACTS and TASKS."),
		mcp.WithString("sql", mcp.Description("SQL statement"), mcp.Required()),
		mcp.WithString("action", mcp.Description("When set, the statement must match this action (add|view|update).")),
	), executeHandler(svc))

	s.AddTool(mcp.NewTool("format",
		mcp.WithDescription("Render an execute result as a reply."),
		mcp.WithString("action", mcp.Description("add|view|update"), mcp.Required()),
		mcp.WithString("result", mcp.Description("Result JSON as returned by execute"), mcp.Required()),
	), formatHandler(svc))

	// Conversation
	s.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Run a request end to end: classify, generate SQL, validate, execute and format."),
		mcp.WithString("text", mcp.Description("Natural-language request"), mcp.Required()),
		mcp.WithString("session_id", mcp.Description("Session ID (defaults to 'default').")),
	), askHandler(svc))

	s.AddTool(mcp.NewTool("commit_draft",
		mcp.WithDescription("Create a task from the draft staged for a session."),
		mcp.WithString("session_id", mcp.Description("Session ID (defaults to 'default').")),
		mcp.WithString("assigned_to", mcp.Description("Override the assignee name")),
		mcp.WithString("deadline", mcp.Description("Override the deadline (e.g. 'tomorrow', '2025-04-01')")),
	), commitDraftHandler(svc))

	// Records
	s.AddTool(mcp.NewTool("list_contacts",
		mcp.WithDescription("List all contacts."),
	), listContactsHandler(svc))

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks ordered by deadline."),
		mcp.WithString("status", mcp.Description("Filter by status")),
	), listTasksHandler(svc))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func parseAction(request mcp.CallToolRequest) (models.Action, error) {
	raw := mcp.ParseString(request, "action", "")
	a, ok := models.ParseAction(raw)
	if !ok {
		return "", fmt.Errorf("unknown action '%s'", raw)
	}
	return a, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(data))
}

func classifyHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text := mcp.ParseString(request, "text", "")
		action, warning := svc.Classifier.ClassifyDetailed(ctx, text)
		if warning != "" {
			return mcp.NewToolResultText(fmt.Sprintf("%s\n\n%s", action, warning)), nil
		}
		return mcp.NewToolResultText(string(action)), nil
	}
}

func synthesizeHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		action, err := parseAction(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		sql := svc.Synth.Synthesize(ctx, action, mcp.ParseString(request, "text", ""))
		if sql == "" {
			return mcp.NewToolResultError("could not generate a query for that request"), nil
		}
		return mcp.NewToolResultText(sql), nil
	}
}

func extractHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text := mcp.ParseString(request, "text", "")
		sessionID := mcp.ParseString(request, "session_id", defaultSession)

		draft, err := svc.Extractor.Extract(ctx, text)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		svc.Assistant.Sessions().StageDraft(sessionID, draft)
		return jsonResult(draft), nil
	}
}

func executeHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql := mcp.ParseString(request, "sql", "")
		if mcp.ParseString(request, "action", "") != "" {
			action, err := parseAction(request)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := svc.Guard.Check(action, sql); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}

		res, err := svc.DB.Execute(ctx, sql)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(res), nil
	}
}

func formatHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		action, err := parseAction(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var res models.Result
		if err := json.Unmarshal([]byte(mcp.ParseString(request, "result", "")), &res); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid result JSON: %v", err)), nil
		}
		return mcp.NewToolResultText(svc.Formatter.Format(action, &res)), nil
	}
}

func askHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text := mcp.ParseString(request, "text", "")
		sessionID := mcp.ParseString(request, "session_id", defaultSession)

		reply := svc.Assistant.Handle(ctx, sessionID, text)
		if reply.Failed() {
			return mcp.NewToolResultError(reply.Text), nil
		}
		if reply.Draft != nil {
			return jsonResult(reply), nil
		}
		return mcp.NewToolResultText(reply.Text), nil
	}
}

func commitDraftHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID := mcp.ParseString(request, "session_id", defaultSession)
		patch := &models.TaskDraft{
			AssignedTo: mcp.ParseString(request, "assigned_to", ""),
			Deadline:   mcp.ParseString(request, "deadline", ""),
		}

		task, err := svc.Assistant.CommitDraft(ctx, sessionID, patch)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Task #%d '%s' created for %s", task.ID, task.Title, task.AssigneeName)), nil
	}
}

func listContactsHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		contacts, err := svc.DB.ListContacts(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"contacts": contacts}), nil
	}
}

func listTasksHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var status *models.TaskStatus
		if s := mcp.ParseString(request, "status", ""); s != "" {
			ts := models.TaskStatus(s)
			if !ts.Valid() {
				return mcp.NewToolResultError(fmt.Sprintf("unknown status '%s'", s)), nil
			}
			status = &ts
		}

		tasks, err := svc.DB.ListTasks(ctx, status)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"tasks": tasks}), nil
	}
}
