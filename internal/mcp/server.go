// Package mcp exposes the schema catalog as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/schemavault/schemavault/application/service"
	"github.com/schemavault/schemavault/domain/schema"
)

// CatalogService provides the schema catalog operations the tools call.
type CatalogService interface {
	AddSchema(ctx context.Context, table schema.TableSchema) (schema.Record, error)
	Query(ctx context.Context, text string, topK int) ([]service.QueryMatch, error)
	List(ctx context.Context) []service.ModelSummary
}

// Server wraps the MCP server with the schema tools.
type Server struct {
	mcpServer *server.MCPServer
	catalog   CatalogService
	logger    *slog.Logger
}

// NewServer creates a new MCP server with the given catalog.
func NewServer(catalog CatalogService, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		catalog: catalog,
		logger:  logger,
	}

	mcpServer := server.NewMCPServer(
		"schemavault",
		version,
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)
	s.mcpServer = mcpServer
	return s
}

// registerTools registers all schema tools with the MCP server.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	addSchemaTool := mcp.NewTool("add_schema",
		mcp.WithDescription("Store a database table schema for semantic search"),
		mcp.WithString("catalog",
			mcp.Required(),
			mcp.Description("Catalog name"),
		),
		mcp.WithString("schema",
			mcp.Required(),
			mcp.Description("Schema name"),
		),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("Table name"),
		),
		mcp.WithArray("columns",
			mcp.Description("Table columns"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":     map[string]any{"type": "string"},
					"type":     map[string]any{"type": "string"},
					"nullable": map[string]any{"type": "boolean"},
					"comment":  map[string]any{"type": "string"},
				},
				"required": []string{"name", "type"},
			}),
		),
		mcp.WithString("description",
			mcp.Description("Free-text table description used for semantic search"),
		),
	)
	mcpServer.AddTool(addSchemaTool, s.handleAddSchema)

	queryModelTool := mcp.NewTool("query_model",
		mcp.WithDescription("Find table schemas by semantic similarity to a query"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Number of results to return (default: 5)"),
		),
	)
	mcpServer.AddTool(queryModelTool, s.handleQueryModel)

	listModelsTool := mcp.NewTool("list_models",
		mcp.WithDescription("List all stored table schemas"),
	)
	mcpServer.AddTool(listModelsTool, s.handleListModels)
}

// columnPayload is the wire shape of one column in tool arguments and
// results.
type columnPayload struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Comment  string `json:"comment,omitempty"`
}

// handleAddSchema handles the add_schema tool invocation.
func (s *Server) handleAddSchema(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	catalog, err := request.RequireString("catalog")
	if err != nil {
		return mcp.NewToolResultError("catalog is required"), nil
	}
	schemaName, err := request.RequireString("schema")
	if err != nil {
		return mcp.NewToolResultError("schema is required"), nil
	}
	tableName, err := request.RequireString("table")
	if err != nil {
		return mcp.NewToolResultError("table is required"), nil
	}
	description := request.GetString("description", "")

	columns, err := parseColumns(request.GetArguments()["columns"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	table := schema.NewTableSchema(catalog, schemaName, tableName, columns, description)
	record, err := s.catalog.AddSchema(ctx, table)
	if err != nil {
		s.logger.Error("add_schema failed", slog.String("id", table.ID()), slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("add_schema failed: %v", err)), nil
	}

	result := struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}{ID: record.ID(), Status: "stored"}

	return marshalResult(result)
}

// handleQueryModel handles the query_model tool invocation.
func (s *Server) handleQueryModel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query is required"), nil
	}
	topK := request.GetInt("top_k", service.DefaultTopK)

	matches, err := s.catalog.Query(ctx, query, topK)
	if err != nil {
		s.logger.Error("query_model failed", slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("query_model failed: %v", err)), nil
	}

	type queryResult struct {
		ID          string          `json:"id"`
		Catalog     string          `json:"catalog"`
		Schema      string          `json:"schema"`
		Table       string          `json:"table"`
		Columns     []columnPayload `json:"columns"`
		Description string          `json:"description,omitempty"`
		Distance    float64         `json:"distance"`
	}

	results := make([]queryResult, len(matches))
	for i, m := range matches {
		table := m.Record().Table()
		cols := table.Columns()
		payload := make([]columnPayload, len(cols))
		for j, c := range cols {
			payload[j] = columnPayload{
				Name:     c.Name(),
				Type:     c.DataType(),
				Nullable: c.Nullable(),
				Comment:  c.Comment(),
			}
		}
		results[i] = queryResult{
			ID:          m.Record().ID(),
			Catalog:     table.Catalog(),
			Schema:      table.SchemaName(),
			Table:       table.TableName(),
			Columns:     payload,
			Description: table.Description(),
			Distance:    m.Distance(),
		}
	}

	return marshalResult(results)
}

// handleListModels handles the list_models tool invocation.
func (s *Server) handleListModels(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summaries := s.catalog.List(ctx)

	type listResult struct {
		ID      string `json:"id"`
		Catalog string `json:"catalog"`
		Schema  string `json:"schema"`
		Table   string `json:"table"`
	}

	results := make([]listResult, len(summaries))
	for i, m := range summaries {
		results[i] = listResult{
			ID:      m.ID(),
			Catalog: m.Catalog(),
			Schema:  m.SchemaName(),
			Table:   m.TableName(),
		}
	}

	return marshalResult(results)
}

// parseColumns converts the raw columns argument into domain columns. A
// missing argument is an empty column list, not an error.
func parseColumns(raw any) ([]schema.Column, error) {
	if raw == nil {
		return []schema.Column{}, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("columns must be an array")
	}

	columns := make([]schema.Column, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("columns[%d] must be an object", i)
		}
		name, _ := obj["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("columns[%d].name is required", i)
		}
		dataType, _ := obj["type"].(string)
		if dataType == "" {
			return nil, fmt.Errorf("columns[%d].type is required", i)
		}
		nullable := true
		if v, ok := obj["nullable"].(bool); ok {
			nullable = v
		}
		comment, _ := obj["comment"].(string)
		columns = append(columns, schema.NewColumn(name, dataType, nullable, comment))
	}
	return columns, nil
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// MCPServer returns the underlying MCP server for HTTP mounting.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
