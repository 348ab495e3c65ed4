package tools

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rhuss/vaultgate/pkg/auth"
	"github.com/rhuss/vaultgate/pkg/backend"
	"github.com/rhuss/vaultgate/pkg/debug"
)

// ServerName is the implementation name reported during MCP initialization.
const ServerName = "vaultgate"

// TextInput is the argument shape shared by both tools.
type TextInput struct {
	Text string `json:"text" jsonschema:"the text to process"`
}

// DehydrateOutput is the structured result of the dehydrate tool.
type DehydrateOutput struct {
	ProcessedText  string           `json:"processedText" jsonschema:"text with sensitive values replaced by vault tokens"`
	Entities       []backend.Entity `json:"entities,omitempty" jsonschema:"sensitive spans that were replaced"`
	WordCount      int              `json:"wordCount,omitempty"`
	CharacterCount int              `json:"characterCount,omitempty"`
}

// RehydrateOutput is the structured result of the rehydrate tool.
type RehydrateOutput struct {
	ProcessedText string `json:"processedText" jsonschema:"text with vault tokens replaced by the original values"`
}

// NewServer builds an MCP server with the dehydrate and rehydrate tools.
func NewServer(version string) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "dehydrate",
		Description: "Detect sensitive data in text and replace it with vault tokens.",
	}, dehydrate)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "rehydrate",
		Description: "Replace vault tokens in text with the original sensitive values.",
	}, rehydrate)

	return s
}

func dehydrate(ctx context.Context, _ *mcp.CallToolRequest, in TextInput) (*mcp.CallToolResult, DehydrateOutput, error) {
	rc, err := auth.FromContext(ctx)
	if err != nil {
		return nil, DehydrateOutput{}, err
	}

	debug.Log("tools", "dehydrate", "request_id", rc.ID, "vault_id", rc.VaultID, "anonymous", rc.Anonymous, "chars", len(in.Text))

	res, err := rc.Backend.Deidentify(ctx, in.Text)
	if err != nil {
		return nil, DehydrateOutput{}, fmt.Errorf("dehydrate: %w", err)
	}

	return nil, DehydrateOutput{
		ProcessedText:  res.ProcessedText,
		Entities:       res.Entities,
		WordCount:      res.WordCount,
		CharacterCount: res.CharacterCount,
	}, nil
}

func rehydrate(ctx context.Context, _ *mcp.CallToolRequest, in TextInput) (*mcp.CallToolResult, RehydrateOutput, error) {
	rc, err := auth.FromContext(ctx)
	if err != nil {
		return nil, RehydrateOutput{}, err
	}

	debug.Log("tools", "rehydrate", "request_id", rc.ID, "vault_id", rc.VaultID, "anonymous", rc.Anonymous, "chars", len(in.Text))

	text, err := rc.Backend.Reidentify(ctx, in.Text)
	if err != nil {
		return nil, RehydrateOutput{}, fmt.Errorf("rehydrate: %w", err)
	}
	return nil, RehydrateOutput{ProcessedText: text}, nil
}

// Handler returns the streamable HTTP endpoint. It runs stateless with
// plain JSON responses, so every POST is served by a fresh server that
// sees only the context of its own request.
func Handler(version string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return NewServer(version)
	}, &mcp.StreamableHTTPOptions{
		Stateless:    true,
		JSONResponse: true,
		Logger:       logger,
	})
}
