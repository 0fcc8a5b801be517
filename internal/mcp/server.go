package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"furnace-optimizer/backend/internal/params"
	"furnace-optimizer/backend/internal/workflow"
	"furnace-optimizer/backend/pkg/models"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const inFlightMessage = "A prediction is already running; try again when it completes"

// Server exposes one service-account workflow as MCP tools.
type Server struct {
	mcpServer *server.MCPServer
	workflow  *workflow.Controller
}

func NewServer(wf *workflow.Controller) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Blast Furnace Optimizer",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		workflow: wf,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Submit the eight measured blast-furnace parameters and return the prediction and the number of non-dominated solutions"),
	}
	for _, field := range models.Fields {
		opts = append(opts, mcp.WithString(string(field),
			mcp.Required(),
			mcp.Description(models.Label(field)+" as entered by the operator"),
		))
	}
	s.mcpServer.AddTool(mcp.NewTool("predict", opts...), s.handlePredict)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"workflow_state",
			mcp.WithDescription("Return the current state of the prediction workflow"),
		),
		s.handleState,
	)
}

func (s *Server) handlePredict(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	values := make(map[string]string, models.FieldCount)
	for _, field := range models.Fields {
		switch v := args[string(field)].(type) {
		case string:
			values[string(field)] = v
		case float64:
			values[string(field)] = fmt.Sprint(v)
		case nil:
			values[string(field)] = ""
		default:
			return mcp.NewToolResultError(fmt.Sprintf("Invalid type for parameter: %s", field)), nil
		}
	}

	state, err := s.workflow.SubmitWith(ctx, values)
	if errors.Is(err, workflow.ErrSubmissionInFlight) || errors.Is(err, params.ErrFormFrozen) {
		return mcp.NewToolResultError(inFlightMessage), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to predict: %v", err)), nil
	}
	if state.Phase == workflow.PhaseFailed {
		return mcp.NewToolResultError(state.Error), nil
	}

	jsonBytes, _ := json.Marshal(state.Result)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jsonBytes, _ := json.Marshal(s.workflow.State())
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

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
