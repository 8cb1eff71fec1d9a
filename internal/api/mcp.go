package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/whatnow/internal/storage"
	"github.com/kalambet/whatnow/internal/worker"
)

// MCPDeps holds dependencies for the MCP server. MCP tools run as a single
// configured user; UserID scopes every operation.
type MCPDeps struct {
	Store       *storage.Store
	Recommender Recommender
	UserID      string
}

// NewMCPServer creates an MCP server exposing task management tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"whatnow",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("whatnow — context-aware task list: add tasks, list them, and ask what to do right now."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("add_task",
			mcp.WithDescription("Add a task to the list. Labeling runs in the background."),
			mcp.WithString("title", mcp.Description("Task title"), mcp.Required()),
			mcp.WithString("description", mcp.Description("Optional task description")),
			mcp.WithString("priority", mcp.Description("Priority: low, medium, high, urgent (default medium)")),
			mcp.WithString("due_date", mcp.Description("Optional due date in RFC3339 format")),
		),
		mcpAddTask(deps),
	)

	s.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List active tasks with their labeling status."),
			mcp.WithString("status", mcp.Description("Optional status filter: todo, in_progress, completed, cancelled")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of tasks (default 20)")),
		),
		mcpListTasks(deps),
	)

	s.AddTool(
		mcp.NewTool("recommend",
			mcp.WithDescription("Describe your current situation and get task recommendations."),
			mcp.WithString("message", mcp.Description("Free-text description of your current situation"), mcp.Required()),
			mcp.WithNumber("top_k", mcp.Description("Number of recommendations (1-10, default 3)")),
		),
		mcpRecommend(deps),
	)

	return s
}

func mcpAddTask(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}

		priority := storage.TaskPriority(req.GetString("priority", string(storage.PriorityMedium)))
		if !priority.Valid() {
			return mcpError(fmt.Sprintf("unknown priority %q", priority)), nil
		}

		var dueDate *time.Time
		if s := req.GetString("due_date", ""); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return mcpError(fmt.Sprintf("invalid due_date: %v", err)), nil
			}
			dueDate = &t
		}

		now := time.Now().UTC()
		task := storage.Task{
			ID:             uuid.New().String(),
			UserID:         deps.UserID,
			Title:          title,
			Description:    req.GetString("description", ""),
			Status:         storage.StatusTodo,
			Priority:       priority,
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
			DueDate:        dueDate,
			LabelingStatus: storage.LabelingPending,
		}
		if err := deps.Store.CreateTask(task); err != nil {
			return mcpError(fmt.Sprintf("failed to create task: %v", err)), nil
		}

		if err := worker.EnqueueLabeling(deps.Store, task.ID, deps.UserID, nil); err != nil {
			return mcpText(fmt.Sprintf("Created task %s (labeling could not be queued: %v)", task.ID, err)), nil
		}
		return mcpText(fmt.Sprintf("Created task %s, labeling queued", task.ID)), nil
	}
}

func mcpListTasks(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		active := true
		filter := storage.TaskFilter{
			IsActive: &active,
			PageSize: limit,
		}
		if status := req.GetString("status", ""); status != "" {
			filter.Status = storage.TaskStatus(status)
			if !filter.Status.Valid() {
				return mcpError(fmt.Sprintf("unknown status %q", status)), nil
			}
		}

		tasks, _, err := deps.Store.ListTasks(deps.UserID, filter)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list tasks: %v", err)), nil
		}

		views := make([]taskView, len(tasks))
		for i, t := range tasks {
			views[i] = viewTask(t)
		}
		b, err := json.Marshal(views)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal tasks: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecommend(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		resp, err := deps.Recommender.Recommend(ctx, deps.UserID, message, req.GetInt("top_k", 0))
		if err != nil {
			return mcpError(fmt.Sprintf("recommendation failed: %v", err)), nil
		}

		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal response: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
