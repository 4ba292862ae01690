package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the review scraping tool on an MCP server, so
// agent runtimes can call the pipeline without going through HTTP.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "scrape_reviews",
		Description: "Extract structured product reviews (title, body, rating, reviewer) from an e-commerce product page URL, following pagination.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"page": map[string]any{
					"type":        "string",
					"description": "Product page URL to scrape reviews from",
				},
				"max_count": map[string]any{
					"type":        "integer",
					"description": "Maximum number of unique reviews to collect",
				},
			},
			"required": []string{"page"},
		},
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			Page     string `json:"page"`
			MaxCount int    `json:"max_count"`
		}
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}

		result, err := s.Scrape(ctx, args.Page, args.MaxCount)
		if err != nil && (result == nil || result.ReviewsCount == 0) {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		data, err := json.Marshal(result)
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
