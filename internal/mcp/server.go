package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"ideaflow/backend/internal/auth"
	"ideaflow/backend/internal/logging"
	"ideaflow/backend/internal/services"
	"ideaflow/backend/pkg/models"
)

type Server struct {
	mcpServer *server.MCPServer
	service   services.WorkflowService
	notifier  services.Notifier
	logger    *logging.Logger
}

func NewServer(service services.WorkflowService, notifier services.Notifier, logger *logging.Logger, version string) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		mcpServer: server.NewMCPServer(
			"ideaflow",
			version,
			server.WithToolCapabilities(true),
		),
		service:  service,
		notifier: notifier,
		logger:   logger,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"update_idea_status",
			mcp.WithDescription("Move an idea to a new lifecycle status"),
			mcp.WithString("idea_id", mcp.Required(), mcp.Description("The ID of the idea")),
			mcp.WithString("status", mcp.Required(), mcp.Description("The target status, e.g. under_review or endorsed")),
			mcp.WithString("feedback", mcp.Description("Reviewer feedback recorded with the decision")),
		),
		s.handleUpdateIdeaStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_idea",
			mcp.WithDescription("Fetch an idea with its lifecycle fields"),
			mcp.WithString("idea_id", mcp.Required(), mcp.Description("The ID of the idea")),
		),
		s.handleGetIdea,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_allowed_transitions",
			mcp.WithDescription("List the statuses the caller may move an idea to"),
			mcp.WithString("idea_id", mcp.Required(), mcp.Description("The ID of the idea")),
		),
		s.handleListAllowedTransitions,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_incubation_record",
			mcp.WithDescription("Fetch the incubation record created when an idea was endorsed"),
			mcp.WithString("idea_id", mcp.Required(), mcp.Description("The ID of the idea")),
		),
		s.handleGetIncubationRecord,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_evaluation",
			mcp.WithDescription("Fetch the evaluation a reviewer recorded for an idea"),
			mcp.WithString("idea_id", mcp.Required(), mcp.Description("The ID of the idea")),
			mcp.WithString("evaluator_id", mcp.Required(), mcp.Description("The reviewer's user ID")),
		),
		s.handleGetEvaluation,
	)
}

func (s *Server) handleUpdateIdeaStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("Unauthenticated: no actor on session"), nil
	}
	ideaID, err := request.RequireString("idea_id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: idea_id"), nil
	}
	status, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: status"), nil
	}

	result, err := s.service.Transition(ctx, services.TransitionRequest{
		IdeaID: ideaID,
		Actor:  actor,
		Target: models.Status(status),
		Reason: request.GetString("feedback", ""),
	})
	if err != nil {
		return toolError("Failed to update status", err), nil
	}

	if s.notifier != nil && len(result.Intents) > 0 {
		s.notifier.Dispatch(ctx, result.Intents)
	}
	return jsonResult(result.Idea.Summary())
}

func (s *Server) handleGetIdea(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("Unauthenticated: no actor on session"), nil
	}
	ideaID, err := request.RequireString("idea_id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: idea_id"), nil
	}

	idea, err := s.service.GetIdea(ctx, actor, ideaID)
	if err != nil {
		return toolError("Failed to get idea", err), nil
	}
	return jsonResult(idea)
}

func (s *Server) handleListAllowedTransitions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("Unauthenticated: no actor on session"), nil
	}
	ideaID, err := request.RequireString("idea_id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: idea_id"), nil
	}

	idea, err := s.service.GetIdea(ctx, actor, ideaID)
	if err != nil {
		return toolError("Failed to get idea", err), nil
	}
	allowed, err := s.service.AllowedTransitions(ctx, actor, ideaID)
	if err != nil {
		return toolError("Failed to list transitions", err), nil
	}
	return jsonResult(map[string]any{
		"idea_id": idea.ID,
		"status":  idea.Status,
		"allowed": allowed,
	})
}

func (s *Server) handleGetIncubationRecord(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("Unauthenticated: no actor on session"), nil
	}
	ideaID, err := request.RequireString("idea_id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: idea_id"), nil
	}

	record, err := s.service.GetIncubationRecord(ctx, actor, ideaID)
	if err != nil {
		return toolError("Failed to get incubation record", err), nil
	}
	return jsonResult(record)
}

func (s *Server) handleGetEvaluation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("Unauthenticated: no actor on session"), nil
	}
	ideaID, err := request.RequireString("idea_id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: idea_id"), nil
	}
	evaluatorID, err := request.RequireString("evaluator_id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: evaluator_id"), nil
	}

	eval, err := s.service.GetEvaluation(ctx, actor, ideaID, evaluatorID)
	if err != nil {
		return toolError("Failed to get evaluation", err), nil
	}
	return jsonResult(eval)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// toolError labels workflow failures so agents can tell a refusal from a fault.
func toolError(prefix string, err error) *mcp.CallToolResult {
	kind := "error"
	switch {
	case errors.Is(err, services.ErrNotFound):
		kind = "not_found"
	case errors.Is(err, services.ErrForbidden):
		kind = "forbidden"
	case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrInvalidStatus):
		kind = "invalid_transition"
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s [%s]: %v", prefix, kind, err))
}

// MountHTTPHandlers exposes the MCP server over SSE below /mcp. The actor
// resolved by the auth middleware is carried into every tool call.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	sseServer := server.NewSSEServer(mcpServer,
		server.WithStaticBasePath("/mcp"),
		server.WithSSEContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if actor, ok := auth.ActorFromContext(r.Context()); ok {
				return auth.WithActor(ctx, actor)
			}
			return ctx
		}),
	)

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
