// Package mcp registers the linkquest game tools on an MCP server so that
// agents can fetch challenges, read results and trigger the judge. The server
// is served over stdio by `linkquest mcp`.
package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/linkquest/internal/audit"
	"github.com/hazyhaar/linkquest/internal/db"
	"github.com/hazyhaar/linkquest/internal/llm"
	"github.com/hazyhaar/pkg/kit"
)

var errMatchNotFound = errors.New("match not found")

// NewServer creates an MCPServer with all game tools registered. auditLog
// may be nil.
func NewServer(database *db.DB, evaluator *llm.Evaluator, auditLog audit.Logger, version string) *server.MCPServer {
	srv := server.NewMCPServer(
		"linkquest",
		version,
		server.WithToolCapabilities(true),
	)

	registerNextPrompt(srv, database)
	registerListPrompts(srv, database)
	registerLeaderboard(srv, database)
	registerGetMatch(srv, database)
	registerEvaluateMatch(srv, evaluator, auditLog)

	return srv
}

// --- next_prompt ---

func registerNextPrompt(srv *server.MCPServer, database *db.DB) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id": map[string]string{"type": "string", "description": "Player ID; omit for an anonymous player"},
		},
	})
	tool := mcp.NewToolWithRawSchema("next_prompt", "Get the next unplayed challenge for a player (lowest level first)", schema)

	kit.RegisterMCPTool(srv, tool, func(ctx context.Context, request any) (any, error) {
		userID := request.(*nextPromptReq).UserID
		var (
			p   *db.Prompt
			err error
		)
		if userID == "" {
			p, err = database.LowestLevelPrompt()
		} else {
			p, err = database.NextPromptForUser(userID)
		}
		if errors.Is(err, sql.ErrNoRows) {
			return map[string]any{"done": true}, nil
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{"prompt": p}, nil
	}, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		return &kit.MCPDecodeResult{Request: &nextPromptReq{UserID: stringArg(args, "user_id")}}, nil
	})
}

type nextPromptReq struct {
	UserID string `json:"user_id"`
}

// --- list_prompts ---

func registerListPrompts(srv *server.MCPServer, database *db.DB) {
	schema, _ := json.Marshal(map[string]any{"type": "object", "properties": map[string]any{}})
	tool := mcp.NewToolWithRawSchema("list_prompts", "List every challenge ordered by level", schema)

	kit.RegisterMCPTool(srv, tool, func(ctx context.Context, request any) (any, error) {
		prompts, err := database.ListPrompts()
		if err != nil {
			return nil, err
		}
		return map[string]any{"prompts": prompts, "count": len(prompts)}, nil
	}, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: &struct{}{}}, nil
	})
}

// --- leaderboard ---

func registerLeaderboard(srv *server.MCPServer, database *db.DB) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"include_match_id": map[string]string{"type": "string", "description": "Also rank this match, even if anonymous"},
			"limit":            map[string]any{"type": "integer", "description": "Max entries", "default": 20},
		},
	})
	tool := mcp.NewToolWithRawSchema("leaderboard", "Total judge score per player, highest first", schema)

	kit.RegisterMCPTool(srv, tool, func(ctx context.Context, request any) (any, error) {
		r := request.(*leaderboardReq)
		entries, err := database.Leaderboard(r.IncludeMatchID, r.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"leaderboard": entries}, nil
	}, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		return &kit.MCPDecodeResult{Request: &leaderboardReq{
			IncludeMatchID: stringArg(args, "include_match_id"),
			Limit:          intArg(args, "limit", 20),
		}}, nil
	})
}

type leaderboardReq struct {
	IncludeMatchID string `json:"include_match_id"`
	Limit          int    `json:"limit"`
}

// --- get_match ---

func registerGetMatch(srv *server.MCPServer, database *db.DB) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"match_id": map[string]string{"type": "string", "description": "Match ID"},
		},
		"required": []string{"match_id"},
	})
	tool := mcp.NewToolWithRawSchema("get_match", "Get a match with its prompt, resources and evaluations", schema)

	kit.RegisterMCPTool(srv, tool, func(ctx context.Context, request any) (any, error) {
		id := request.(*matchReq).MatchID
		m, err := database.GetMatch(id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errMatchNotFound
		}
		if err != nil {
			return nil, err
		}
		p, err := database.GetPrompt(m.PromptID)
		if err != nil {
			return nil, err
		}
		res, err := database.ListResources(id)
		if err != nil {
			return nil, err
		}
		evals, err := database.ListEvaluations(id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"match": m, "prompt": p, "resources": res, "evaluations": evals}, nil
	}, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		return &kit.MCPDecodeResult{Request: &matchReq{MatchID: stringArg(args, "match_id")}}, nil
	})
}

type matchReq struct {
	MatchID string `json:"match_id"`
}

// --- evaluate_match ---

func registerEvaluateMatch(srv *server.MCPServer, evaluator *llm.Evaluator, auditLog audit.Logger) {
	var endpoint kit.Endpoint = func(ctx context.Context, request any) (any, error) {
		return evaluator.Evaluate(ctx, request.(*matchReq).MatchID)
	}
	if auditLog != nil {
		endpoint = audit.Middleware(auditLog, "evaluate_match")(endpoint)
	}

	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"match_id": map[string]string{"type": "string", "description": "Match ID to judge"},
		},
		"required": []string{"match_id"},
	})
	tool := mcp.NewToolWithRawSchema("evaluate_match", "Run the judge on a match once and store its scores", schema)

	kit.RegisterMCPTool(srv, tool, endpoint, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		return &kit.MCPDecodeResult{Request: &matchReq{MatchID: stringArg(args, "match_id")}}, nil
	})
}

// --- helpers ---

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return def
	}
}
