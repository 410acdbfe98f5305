package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/chunkdim/internal/dimension"
	"github.com/kalambet/chunkdim/internal/generation"
	"github.com/kalambet/chunkdim/internal/storage"
)

// NewMCPServer exposes the pipeline operations as MCP tools.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"chunkdim",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("chunkdim splits documents into typed chunks and generates structured dimensions for each chunk."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("start_extraction",
			mcp.WithDescription("Queue chunk extraction for a document. Existing chunks of the document are replaced."),
			mcp.WithString("document_id", mcp.Description("Document to extract"), mcp.Required()),
			mcp.WithString("user_id", mcp.Description("User requesting the extraction")),
		),
		mcpStartExtraction(deps),
	)

	s.AddTool(
		mcp.NewTool("get_job_status",
			mcp.WithDescription("Return an extraction job. With only document_id, returns the document's latest job."),
			mcp.WithString("job_id", mcp.Description("Extraction job id")),
			mcp.WithString("document_id", mcp.Description("Document id")),
		),
		mcpGetJobStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_dimensions",
			mcp.WithDescription("Queue a dimension generation run for a document's chunks."),
			mcp.WithString("document_id", mcp.Description("Document whose chunks are processed"), mcp.Required()),
			mcp.WithArray("chunk_ids", mcp.Description("Restrict the run to these chunks")),
			mcp.WithArray("template_ids", mcp.Description("Restrict the run to these templates")),
			mcp.WithString("model", mcp.Description("Model override")),
			mcp.WithNumber("temperature", mcp.Description("Temperature override")),
			mcp.WithString("user_id", mcp.Description("User requesting the run")),
		),
		mcpGenerateDimensions(deps),
	)

	s.AddTool(
		mcp.NewTool("list_runs",
			mcp.WithDescription("List generation runs of a document, or of the document owning a chunk with a has_data flag."),
			mcp.WithString("document_id", mcp.Description("Document id")),
			mcp.WithString("chunk_id", mcp.Description("Chunk row id")),
		),
		mcpListRuns(deps),
	)

	s.AddTool(
		mcp.NewTool("get_dimensions",
			mcp.WithDescription("Return the dimensions of a chunk for one run, or its whole history."),
			mcp.WithString("chunk_id", mcp.Description("Chunk row id"), mcp.Required()),
			mcp.WithString("run_id", mcp.Description("Run id; omit for every run")),
		),
		mcpGetDimensions(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"chunkdim://fields",
			"Dimension Fields",
			mcp.WithResourceDescription("The registry of dimension fields"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceFields,
	)

	return s
}

func mcpStartExtraction(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docID, err := req.RequireString("document_id")
		if err != nil {
			return mcpError("document_id is required"), nil
		}
		if _, err := deps.Store.GetDocument(docID); err != nil {
			return mcpError(lookupMessage(err, "document")), nil
		}
		job, err := deps.Extractor.Start(deps.Store, docID, req.GetString("user_id", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to start extraction: %v", err)), nil
		}
		return mcpJSON(newJobView(job))
	}
}

func mcpGetJobStatus(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var (
			job storage.ExtractionJob
			err error
		)
		switch jobID, docID := req.GetString("job_id", ""), req.GetString("document_id", ""); {
		case jobID != "":
			job, err = deps.Store.GetJob(jobID)
		case docID != "":
			job, err = deps.Store.GetLatestJob(docID)
		default:
			return mcpError("one of job_id or document_id is required"), nil
		}
		if err != nil {
			return mcpError(lookupMessage(err, "extraction job")), nil
		}
		return mcpJSON(newJobView(job))
	}
}

func mcpGenerateDimensions(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docID, err := req.RequireString("document_id")
		if err != nil {
			return mcpError("document_id is required"), nil
		}
		if _, err := deps.Store.GetDocument(docID); err != nil {
			return mcpError(lookupMessage(err, "document")), nil
		}

		genReq := generation.Request{
			DocumentID:  docID,
			UserID:      req.GetString("user_id", ""),
			ChunkIDs:    req.GetStringSlice("chunk_ids", nil),
			TemplateIDs: req.GetStringSlice("template_ids", nil),
		}
		model := req.GetString("model", "")
		temp, hasTemp := req.GetArguments()["temperature"].(float64)
		if model != "" || hasTemp {
			genReq.Params = &generation.Params{Model: model}
			if hasTemp {
				genReq.Params.Temperature = &temp
			}
		}

		run, err := deps.Generator.Start(deps.Store, genReq)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to start generation: %v", err)), nil
		}
		return mcpJSON(newRunView(run))
	}
}

func mcpListRuns(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if chunkID := req.GetString("chunk_id", ""); chunkID != "" {
			runs, err := deps.Store.GetRunsForChunk(chunkID)
			if err != nil {
				return mcpError(lookupMessage(err, "chunk")), nil
			}
			return mcpJSON(mapViews(runs, newChunkRunView))
		}
		docID := req.GetString("document_id", "")
		if docID == "" {
			return mcpError("one of document_id or chunk_id is required"), nil
		}
		runs, err := deps.Store.GetRunsByDocument(docID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list runs: %v", err)), nil
		}
		return mcpJSON(mapViews(runs, newRunView))
	}
}

func mcpGetDimensions(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		chunkID, err := req.RequireString("chunk_id")
		if err != nil {
			return mcpError("chunk_id is required"), nil
		}
		if runID := req.GetString("run_id", ""); runID != "" {
			rec, err := deps.Store.GetDimensionsByChunkAndRun(chunkID, runID)
			if err != nil {
				return mcpError(lookupMessage(err, "dimensions")), nil
			}
			return mcpJSON(rec)
		}
		recs, err := deps.Store.GetDimensionsByChunk(chunkID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load dimensions: %v", err)), nil
		}
		return mcpJSON(emptyIfNil(recs))
	}
}

func mcpResourceFields(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(dimension.Fields())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fields: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func lookupMessage(err error, what string) string {
	if errors.Is(err, storage.ErrNotFound) {
		return what + " not found"
	}
	return fmt.Sprintf("failed to load %s: %v", what, err)
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
