package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/legalbrain/internal/extract"
	"github.com/dshills/legalbrain/internal/ingest"
	"github.com/dshills/legalbrain/internal/storage"
	"github.com/dshills/legalbrain/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodePathNotFound     = -32001 // Specified path does not exist
	ErrorCodeIngestInProgress = -32002 // Another directory ingestion is already running
	ErrorCodeEmptyDocument    = -32003 // Document has no text to chunk
	ErrorCodeEmptyQuery       = -32004 // Query parameter is empty
	ErrorCodeProviderFailed   = -32005 // Embedding provider call failed
	ErrorCodeStoreFailed      = -32006 // Vector store call failed
)

// maxReportedErrors caps the per-file errors included in a directory response
const maxReportedErrors = 5

// handleIngestDocument handles the ingest_document tool invocation
func (s *Server) handleIngestDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path := getStringDefault(args, "path", "")
	text := getStringDefault(args, "text", "")
	documentID := strings.TrimSpace(getStringDefault(args, "document_id", ""))

	switch {
	case path == "" && text == "":
		return nil, newMCPError(ErrorCodeInvalidParams, "path or text parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	case path != "" && text != "":
		return nil, newMCPError(ErrorCodeInvalidParams, "path and text cannot both be set", nil)
	}

	if text != "" {
		if documentID == "" {
			return nil, newMCPError(ErrorCodeInvalidParams, "document_id parameter is required with text", map[string]interface{}{
				"param":  "document_id",
				"reason": "missing or empty",
			})
		}
		res, err := s.app.Pipeline.IngestDocument(ctx, documentID, text)
		if err != nil {
			s.invalidateAfterFailure(res)
			return nil, ingestError(err, res)
		}
		s.app.Retriever.InvalidateCache()
		return mcp.NewToolResultText(formatJSON(documentResponse(res))), nil
	}

	info, err := validatePath(path)
	if err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) {
			code = ErrorCodePathNotFound
		}
		return nil, newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	if info.IsDir() {
		if documentID != "" {
			return nil, newMCPError(ErrorCodeInvalidParams, "document_id cannot be used with a directory", map[string]interface{}{
				"param":  "document_id",
				"reason": "document IDs are derived from file paths",
			})
		}
		return s.ingestDirectory(ctx, path, getStringDefault(args, "pattern", ""))
	}

	if !extract.Supported(path) {
		return nil, newMCPError(ErrorCodeInvalidParams, "unsupported file format", map[string]interface{}{
			"param":  "path",
			"reason": extract.ErrUnsupportedFormat.Error(),
		})
	}

	res, err := s.app.Pipeline.IngestFile(ctx, path, documentID)
	if err != nil {
		s.invalidateAfterFailure(res)
		return nil, ingestError(err, res)
	}
	s.app.Retriever.InvalidateCache()

	response := documentResponse(res)
	response["path"] = path
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// invalidateAfterFailure drops cached results once a failed ingestion got far
// enough to replace the previous version of the document
func (s *Server) invalidateAfterFailure(res *ingest.Result) {
	if res != nil {
		s.app.Retriever.InvalidateCache()
	}
}

func (s *Server) ingestDirectory(ctx context.Context, root, pattern string) (*mcp.CallToolResult, error) {
	stats, err := s.app.Pipeline.IngestDirectory(ctx, root, ingest.Options{
		Pattern: pattern,
		Workers: s.app.Config.Ingest.Workers,
	})
	if stats != nil {
		// Partial runs still changed the store
		s.app.Retriever.InvalidateCache()
	}
	if errors.Is(err, ingest.ErrIngestInProgress) {
		return nil, newMCPError(ErrorCodeIngestInProgress, "an ingestion is already running", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "ingestion failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Format response
	response := map[string]interface{}{
		"ingested":       true,
		"run_id":         stats.RunID,
		"files_ingested": stats.FilesIngested,
		"files_skipped":  stats.FilesSkipped,
		"files_failed":   stats.FilesFailed,
		"chunks_stored":  stats.ChunksStored,
		"tokens_used":    stats.TokensUsed,
		"duration_ms":    stats.Duration.Milliseconds(),
		"documents":      stats.IngestedFiles,
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > maxReportedErrors {
			response["errors"] = stats.ErrorMessages[:maxReportedErrors]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchDocuments handles the search_documents tool invocation
func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	maxTopK := s.app.Retriever.MaxTopK()
	topK := getIntDefault(args, "top_k", 0)
	if topK < 0 || topK > maxTopK {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("top_k must be between 1 and %d", maxTopK), map[string]interface{}{
			"param": "top_k",
			"value": topK,
		})
	}

	start := time.Now()
	results, err := s.app.Retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, retrievalError(err)
	}

	items := make([]map[string]interface{}, len(results))
	for i, r := range results {
		item := map[string]interface{}{
			"rank":        i + 1,
			"document_id": r.DocumentID,
			"chunk_index": r.Chunk.Index,
			"score":       r.Score,
			"char_start":  r.Chunk.CharStart,
			"char_end":    r.Chunk.CharEnd,
			"token_count": r.Chunk.TokenCount,
			"content":     r.Chunk.Content,
		}
		if r.Chunk.PageNumber != nil {
			item["page"] = *r.Chunk.PageNumber
		}
		items[i] = item
	}

	response := map[string]interface{}{
		"query":         query,
		"top_k":         s.app.Retriever.Limit(topK),
		"total_results": len(results),
		"duration_ms":   time.Since(start).Milliseconds(),
		"results":       items,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleDeleteDocument handles the delete_document tool invocation
func (s *Server) handleDeleteDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	documentID := strings.TrimSpace(getStringDefault(args, "document_id", ""))
	if documentID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "document_id parameter is required", map[string]interface{}{
			"param":  "document_id",
			"reason": "missing or empty",
		})
	}

	if err := s.app.Store.Delete(ctx, documentID); err != nil {
		return nil, newMCPError(ErrorCodeStoreFailed, "failed to delete document", map[string]interface{}{
			"document_id": documentID,
			"error":       err.Error(),
		})
	}
	s.app.Retriever.InvalidateCache()

	s.logger.Info().Str("document_id", documentID).Msg("document deleted")

	response := map[string]interface{}{
		"deleted":     true,
		"document_id": documentID,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	backend := s.app.Config.Store.Backend

	store := map[string]interface{}{
		"backend": backend,
	}
	switch st := s.app.Store.(type) {
	case storage.StatsReporter:
		stats, err := st.Stats(ctx)
		if err != nil {
			return nil, newMCPError(ErrorCodeStoreFailed, "failed to get status", map[string]interface{}{
				"error": err.Error(),
			})
		}
		store["chunks"] = stats.Chunks
		store["dimension"] = stats.Dimension
		if stats.Documents >= 0 {
			store["documents"] = stats.Documents
		}
		if stats.SizeBytes > 0 {
			store["size_mb"] = fmt.Sprintf("%.2f", float64(stats.SizeBytes)/(1024*1024))
		}
	case storage.Counter:
		n, err := st.Count(ctx)
		if err != nil {
			return nil, newMCPError(ErrorCodeStoreFailed, "failed to get status", map[string]interface{}{
				"error": err.Error(),
			})
		}
		store["chunks"] = n
	}

	if backend == storage.BackendSQLite {
		store["build_mode"] = storage.BuildMode
		store["driver"] = storage.DriverName
		store["vector_extension"] = storage.VectorExtensionAvailable
	}

	provider := s.app.Embedder.Provider()
	response := map[string]interface{}{
		"store": store,
		"embedding": map[string]interface{}{
			"provider":  provider.Name(),
			"model":     provider.Model(),
			"dimension": provider.Dimension(),
		},
		"retrieval": map[string]interface{}{
			"default_top_k": s.app.Retriever.Limit(0),
			"max_top_k":     s.app.Retriever.MaxTopK(),
		},
		"ingesting": s.app.Pipeline.Busy(),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// ingestError maps a pipeline failure to an MCPError. res may be nil.
func ingestError(err error, res *ingest.Result) error {
	data := map[string]interface{}{
		"error": err.Error(),
	}
	if res != nil {
		data["stored"] = res.Stored
		data["resume_index"] = res.ResumeIndex
	}

	var pe *types.ProviderError
	var se *types.StoreError
	switch {
	case errors.Is(err, types.ErrEmptyInput):
		return newMCPError(ErrorCodeEmptyDocument, "document has no text", data)
	case errors.Is(err, extract.ErrUnsupportedFormat), errors.Is(err, storage.ErrInvalidID):
		return newMCPError(ErrorCodeInvalidParams, "invalid document", data)
	case errors.As(err, &pe):
		data["document_id"] = pe.DocumentID
		data["chunk_index"] = pe.ChunkIndex
		return newMCPError(ErrorCodeProviderFailed, "embedding failed", data)
	case errors.As(err, &se):
		data["document_id"] = se.DocumentID
		data["chunk_index"] = se.ChunkIndex
		data["op"] = se.Op
		return newMCPError(ErrorCodeStoreFailed, "storing chunks failed", data)
	default:
		return newMCPError(ErrorCodeInternalError, "ingestion failed", data)
	}
}

// retrievalError maps a retrieval failure to an MCPError
func retrievalError(err error) error {
	if errors.Is(err, types.ErrEmptyQuery) {
		return newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", nil)
	}

	stage, _ := types.StageOf(err)
	data := map[string]interface{}{
		"stage": string(stage),
		"error": err.Error(),
	}
	switch stage {
	case types.StageEmbed:
		return newMCPError(ErrorCodeProviderFailed, "query embedding failed", data)
	case types.StageStore:
		return newMCPError(ErrorCodeStoreFailed, "vector store query failed", data)
	default:
		return newMCPError(ErrorCodeInternalError, "search failed", data)
	}
}

// documentResponse formats a single document result
func documentResponse(res *ingest.Result) map[string]interface{} {
	return map[string]interface{}{
		"ingested":    true,
		"document_id": res.DocumentID,
		"chunks":      res.Chunks,
		"stored":      res.Stored,
		"tokens_used": res.Tokens,
		"duration_ms": res.Duration.Milliseconds(),
	}
}

// validatePath checks that path is absolute, exists and is readable
func validatePath(path string) (os.FileInfo, error) {
	if path == "" {
		return nil, ErrPathRequired
	}

	// Check if path is absolute
	if !filepath.IsAbs(path) {
		return nil, ErrPathNotAbsolute
	}

	// Check if path exists
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, ErrPathNotFound
	}
	if err != nil {
		return nil, ErrPathNotReadable
	}

	// Check if it is readable
	f, err := os.Open(path)
	if err != nil {
		return nil, ErrPathNotReadable
	}
	_ = f.Close()

	return info, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
)
