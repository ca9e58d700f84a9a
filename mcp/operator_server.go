// Package mcp exposes the marketplace's operator surface over the Model
// Context Protocol: read-only inspection plus the ledger-repair actions.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"talentbridge-backend/core/escrow"
	"talentbridge-backend/services"
	"talentbridge-backend/storage/ledger"
)

// OperatorServer wraps the mcp-go server around the marketplace services.
type OperatorServer struct {
	mcpServer   *server.MCPServer
	store       ledger.Store
	assignments *services.AssignmentService
	claims      *services.ClaimCoordinator
	approvals   *services.ApprovalOrchestrator
	reconciler  *services.Reconciler
}

// NewOperatorServer builds the MCP server and registers all tools.
func NewOperatorServer(store ledger.Store, assignments *services.AssignmentService,
	claims *services.ClaimCoordinator, approvals *services.ApprovalOrchestrator,
	reconciler *services.Reconciler) *OperatorServer {
	s := &OperatorServer{
		mcpServer: server.NewMCPServer(
			"TalentBridge Operator",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		store:       store,
		assignments: assignments,
		claims:      claims,
		approvals:   approvals,
		reconciler:  reconciler,
	}
	s.registerTools()
	return s
}

// GetMCPServer returns the underlying MCP server for transport setup.
func (s *OperatorServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the server on stdin/stdout.
func (s *OperatorServer) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *OperatorServer) registerTools() {
	s.registerListAssignmentsTool()
	s.registerGetAssignmentTool()
	s.registerListSubmissionsTool()
	s.registerListDriftTool()
	s.registerForceReconcileTool()
	s.registerListPendingRepairsTool()
	s.registerResumeApprovalTool()
}

func toolJSON(label string, v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s:\n\n%s", label, raw)), nil
}

func (s *OperatorServer) registerListAssignmentsTool() {
	tool := mcp.NewTool("list_assignments",
		mcp.WithDescription("List assignments with optional status and recruiter filters"),
		mcp.WithString("status", mcp.Description("Filter by assignment status")),
		mcp.WithString("recruiter_id", mcp.Description("Filter by posting recruiter")),
	)
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		f := escrow.AssignmentFilter{}
		if v, ok := args["status"].(string); ok {
			f.Status = v
		}
		if v, ok := args["recruiter_id"].(string); ok {
			f.RecruiterID = v
		}
		out, err := s.assignments.ListAssignments(ctx, f)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolJSON(fmt.Sprintf("Found %d assignments", len(out)), out)
	})
}

func (s *OperatorServer) registerGetAssignmentTool() {
	tool := mcp.NewTool("get_assignment",
		mcp.WithDescription("Get one assignment by id"),
		mcp.WithString("assignment_id", mcp.Required(), mcp.Description("Assignment id")),
	)
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := request.GetArguments()["assignment_id"].(string)
		if !ok || id == "" {
			return mcp.NewToolResultError("assignment_id is required"), nil
		}
		a, err := s.assignments.GetAssignment(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolJSON("Assignment", a)
	})
}

func (s *OperatorServer) registerListSubmissionsTool() {
	tool := mcp.NewTool("list_submissions",
		mcp.WithDescription("List submissions for an assignment"),
		mcp.WithString("assignment_id", mcp.Required(), mcp.Description("Assignment id")),
		mcp.WithString("status", mcp.Description("Filter by submission status")),
	)
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		id, ok := args["assignment_id"].(string)
		if !ok || id == "" {
			return mcp.NewToolResultError("assignment_id is required"), nil
		}
		f := escrow.SubmissionFilter{AssignmentID: id}
		if v, ok := args["status"].(string); ok {
			f.Status = v
		}
		out, err := s.claims.ListSubmissions(ctx, f)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolJSON(fmt.Sprintf("Found %d submissions", len(out)), out)
	})
}

func (s *OperatorServer) registerListDriftTool() {
	tool := mcp.NewTool("list_drift",
		mcp.WithDescription("Classify ledger/chain divergence (orphans, stuck deposits, status drift) without repairing"),
	)
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report, err := s.reconciler.Inspect(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolJSON(fmt.Sprintf("Drift report (%d findings)", len(report.Findings)), report)
	})
}

func (s *OperatorServer) registerForceReconcileTool() {
	tool := mcp.NewTool("force_reconcile",
		mcp.WithDescription("Run a reconciliation pass now, repairing ledger drift and resuming parked approvals"),
	)
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report, err := s.reconciler.Run(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolJSON(fmt.Sprintf("Reconcile complete (%d mutations, %d resumed)", report.Mutations, report.Resumed), report)
	})
}

func (s *OperatorServer) registerListPendingRepairsTool() {
	tool := mcp.NewTool("list_pending_repairs",
		mcp.WithDescription("List approval checkpoints whose chain steps ran but whose ledger mirror never landed"),
	)
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := s.store.ListPendingRepairs(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolJSON(fmt.Sprintf("Found %d pending repairs", len(out)), out)
	})
}

func (s *OperatorServer) registerResumeApprovalTool() {
	tool := mcp.NewTool("resume_approval",
		mcp.WithDescription("Re-drive a checkpointed approval pipeline for one submission"),
		mcp.WithString("submission_id", mcp.Required(), mcp.Description("Submission id")),
	)
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := request.GetArguments()["submission_id"].(string)
		if !ok || id == "" {
			return mcp.NewToolResultError("submission_id is required"), nil
		}
		sub, err := s.approvals.ResumeApproval(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toolJSON("Submission after resume", sub)
	})
}
