// Package mcpserver exposes the memory and trust operations as MCP tools so
// surrounding agents can call them over stdio.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/m-mizutani/lethe/pkg/model"
	"github.com/m-mizutani/lethe/pkg/usecase/feedback"
	"github.com/m-mizutani/lethe/pkg/usecase/memory"
	"github.com/m-mizutani/lethe/pkg/usecase/trust"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wires the use cases into an MCP server.
type Server struct {
	memory   *memory.UseCase
	feedback *feedback.UseCase
	trust    *trust.UseCase
}

// New creates the MCP server facade.
func New(memoryUC *memory.UseCase, feedbackUC *feedback.UseCase, trustUC *trust.UseCase) *Server {
	return &Server{
		memory:   memoryUC,
		feedback: feedbackUC,
		trust:    trustUC,
	}
}

// Run serves MCP over stdio until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "lethe",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "store_memory",
		Description: "Store a lesson learned so future runs can retrieve it",
	}, s.storeMemory)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_memories",
		Description: "Search memories by meaning, ranked by similarity and decayed confidence",
	}, s.findMemories)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "cite_memories",
		Description: "Record that memories were used as supporting evidence in this run",
	}, s.citeMemories)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "record_outcome",
		Description: "Report success or failure for memories cited earlier in this run",
	}, s.recordOutcome)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "trust_check",
		Description: "Check whether an action may proceed without human approval",
	}, s.trustCheck)

	return server.Run(ctx, &mcp.StdioTransport{})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil
}

type storeMemoryParams struct {
	Content    string   `json:"content" jsonschema:"The lesson text to remember"`
	Collection string   `json:"collection,omitempty" jsonschema:"Memory collection, defaults to learnings"`
	Tags       []string `json:"tags,omitempty" jsonschema:"Free-text labels"`
	AppSlug    string   `json:"app_slug,omitempty" jsonschema:"Application the lesson belongs to"`
}

func (s *Server) storeMemory(ctx context.Context, req *mcp.CallToolRequest, params *storeMemoryParams) (*mcp.CallToolResult, any, error) {
	collection := params.Collection
	if collection == "" {
		collection = "learnings"
	}

	mem, err := s.memory.Store(ctx, &memory.StoreInput{
		Content:    params.Content,
		Collection: collection,
		Source:     model.SourceAgent,
		Tags:       params.Tags,
		AppSlug:    params.AppSlug,
	})
	if err != nil {
		return nil, nil, err
	}

	result, err := jsonResult(map[string]any{"id": mem.ID, "collection": mem.Collection})
	return result, nil, err
}

type findMemoriesParams struct {
	Query      string  `json:"query" jsonschema:"Natural language search query"`
	Collection string  `json:"collection,omitempty" jsonschema:"Memory collection, defaults to learnings"`
	Limit      int     `json:"limit,omitempty" jsonschema:"Maximum number of results"`
	Threshold  float64 `json:"threshold,omitempty" jsonschema:"Minimum score in [0,1]"`
	AppSlug    string  `json:"app_slug,omitempty" jsonschema:"Filter by application"`
}

type foundMemory struct {
	ID          model.MemoryID `json:"id"`
	Content     string         `json:"content"`
	Score       float64        `json:"score"`
	Similarity  float64        `json:"similarity"`
	AgeDays     float64        `json:"age_days"`
	DecayFactor float64        `json:"decay_factor"`
}

func (s *Server) findMemories(ctx context.Context, req *mcp.CallToolRequest, params *findMemoriesParams) (*mcp.CallToolResult, any, error) {
	collection := params.Collection
	if collection == "" {
		collection = "learnings"
	}

	results, err := s.memory.Find(ctx, &memory.FindInput{
		Query:      params.Query,
		Collection: collection,
		Limit:      params.Limit,
		Threshold:  params.Threshold,
		AppSlug:    params.AppSlug,
	})
	if err != nil {
		return nil, nil, err
	}

	found := make([]*foundMemory, 0, len(results))
	for _, r := range results {
		found = append(found, &foundMemory{
			ID:          r.Memory.ID,
			Content:     r.Memory.Content,
			Score:       r.Score,
			Similarity:  r.Similarity,
			AgeDays:     r.AgeDays,
			DecayFactor: r.DecayFactor,
		})
	}

	result, err := jsonResult(found)
	return result, nil, err
}

type citeMemoriesParams struct {
	IDs        []string `json:"ids" jsonschema:"Memory IDs used as evidence"`
	RunID      string   `json:"run_id,omitempty" jsonschema:"Agent run identifier"`
	Collection string   `json:"collection,omitempty" jsonschema:"Memory collection, defaults to learnings"`
}

func (s *Server) citeMemories(ctx context.Context, req *mcp.CallToolRequest, params *citeMemoriesParams) (*mcp.CallToolResult, any, error) {
	collection := params.Collection
	if collection == "" {
		collection = "learnings"
	}
	runID := params.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	ids := make([]model.MemoryID, 0, len(params.IDs))
	for _, id := range params.IDs {
		ids = append(ids, model.MemoryID(id))
	}

	if err := s.feedback.Cite(ctx, collection, ids, runID); err != nil {
		return nil, nil, err
	}

	result, err := jsonResult(map[string]any{"cited": len(ids), "run_id": runID})
	return result, nil, err
}

type recordOutcomeParams struct {
	IDs        []string `json:"ids" jsonschema:"Memory IDs the outcome applies to"`
	RunID      string   `json:"run_id,omitempty" jsonschema:"Agent run identifier"`
	Outcome    string   `json:"outcome" jsonschema:"success or failure"`
	Collection string   `json:"collection,omitempty" jsonschema:"Memory collection, defaults to learnings"`
	App        string   `json:"app,omitempty" jsonschema:"Application slug for trust scoring"`
	Category   string   `json:"category,omitempty" jsonschema:"Action category for trust scoring"`
}

func (s *Server) recordOutcome(ctx context.Context, req *mcp.CallToolRequest, params *recordOutcomeParams) (*mcp.CallToolResult, any, error) {
	collection := params.Collection
	if collection == "" {
		collection = "learnings"
	}
	runID := params.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	ids := make([]model.MemoryID, 0, len(params.IDs))
	for _, id := range params.IDs {
		ids = append(ids, model.MemoryID(id))
	}

	outcome := model.Outcome(params.Outcome)
	if err := s.feedback.RecordOutcome(ctx, collection, ids, runID, outcome); err != nil {
		return nil, nil, err
	}

	// The same outcome also reinforces the (app, category) trust score
	// when the caller identifies one.
	if params.App != "" && params.Category != "" {
		if _, err := s.trust.Update(ctx, params.App, params.Category, outcome); err != nil {
			return nil, nil, err
		}
	}

	result, err := jsonResult(map[string]any{"recorded": len(ids), "run_id": runID})
	return result, nil, err
}

type trustCheckParams struct {
	App      string `json:"app" jsonschema:"Application slug"`
	Category string `json:"category" jsonschema:"Action category"`
}

func (s *Server) trustCheck(ctx context.Context, req *mcp.CallToolRequest, params *trustCheckParams) (*mcp.CallToolResult, any, error) {
	allowed, err := s.trust.Allow(ctx, params.App, params.Category)
	if err != nil {
		return nil, nil, err
	}

	eval, err := s.trust.Get(ctx, params.App, params.Category)
	if err != nil {
		return nil, nil, err
	}

	result, err := jsonResult(map[string]any{
		"allowed": allowed,
		"score":   eval.Decayed,
		"samples": eval.Row.SampleCount,
	})
	return result, nil, err
}
