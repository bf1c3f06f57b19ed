package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the iFlow tools on an MCP server. The tools mirror the
// HTTP endpoints; documents are read from a local path instead of an upload.
func (s *Server) RegisterMCP(srv *mcp.Server) {
	s.registerExtractTool(srv)
	s.registerUnderstandTool(srv)
	s.registerEditTool(srv)
	s.registerFinalPromptTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// addTool adapts a JSON endpoint to an MCP tool. Endpoint errors become tool
// errors so the client sees them as results, not protocol failures.
func addTool[Req any](srv *mcp.Server, tool *mcp.Tool, endpoint func(context.Context, *Req) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var in Req
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &in); err != nil {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("invalid arguments: %w", err))
				return &res, nil
			}
		}

		out, err := endpoint(ctx, &in)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}

		data, err := json.Marshal(out)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

type pathReq struct {
	Path string `json:"path"`
}

func (s *Server) readDocument(ctx context.Context, path string) (string, string, error) {
	if path == "" {
		return "", "", fmt.Errorf("%w: path is required", errBadRequest)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", "", err
	}
	if info.Size() > s.maxUpload {
		return "", "", fmt.Errorf("%w: %d bytes (max %d)", errTooLarge, info.Size(), s.maxUpload)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	name := filepath.Base(path)
	text, err := s.extractor.ExtractFile(ctx, name, data)
	if err != nil {
		return name, "", err
	}
	return name, text.Text(), nil
}

func (s *Server) registerExtractTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "iflow_extract_text",
		Description: "Extract plain text from a PDF or DOCX design document.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "Path of the .pdf or .docx file"},
		}, []string{"path"}),
	}
	addTool(srv, tool, func(ctx context.Context, req *pathReq) (any, error) {
		name, text, err := s.readDocument(ctx, req.Path)
		if err != nil {
			return nil, err
		}
		return extractResp{Filename: name, Text: text}, nil
	})
}

func (s *Server) registerUnderstandTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "iflow_understand",
		Description: "Read an SAP CPI iFlow design document and return the structured understanding for human review.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "Path of the .pdf or .docx file"},
		}, []string{"path"}),
	}
	addTool(srv, tool, func(ctx context.Context, req *pathReq) (any, error) {
		name, text, err := s.readDocument(ctx, req.Path)
		if err != nil {
			return nil, err
		}
		design, err := s.gen.Understand(ctx, text)
		if err != nil {
			return nil, err
		}
		return understandResp{Filename: name, Understanding: design.String()}, nil
	})
}

func (s *Server) registerEditTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "iflow_edit",
		Description: "Apply one natural-language edit to an iFlow design and return the full updated design.",
		InputSchema: inputSchema(map[string]any{
			"current_design":   map[string]any{"type": "string", "description": "The design as last shown to the reviewer"},
			"edit_instruction": map[string]any{"type": "string", "description": "The change to apply"},
		}, []string{"current_design", "edit_instruction"}),
	}
	addTool(srv, tool, func(ctx context.Context, req *editReq) (any, error) {
		return s.applyEdit(ctx, *req)
	})
}

func (s *Server) registerFinalPromptTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "iflow_final_prompt",
		Description: "Turn a reviewer-approved iFlow design into the final execution prompt.",
		InputSchema: inputSchema(map[string]any{
			"approved_design": map[string]any{"type": "string", "description": "The design the reviewer approved"},
		}, []string{"approved_design"}),
	}
	addTool(srv, tool, func(ctx context.Context, req *finalReq) (any, error) {
		prompt, err := s.finalPrompt(ctx, req.ApprovedDesign)
		if err != nil {
			return nil, err
		}
		return finalResp{FinalPrompt: prompt.String()}, nil
	})
}
