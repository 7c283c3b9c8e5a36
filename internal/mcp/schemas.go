package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// ingestDocumentTool returns the tool definition for ingest_document
func ingestDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_document",
		Description: "Chunk, embed and store a document (or every document in a directory) so it can be searched",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a .txt, .md or .pdf file, or to a directory of them",
				},
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Raw document text; use instead of path. Requires document_id",
				},
				"document_id": map[string]interface{}{
					"type":        "string",
					"description": "Stable document ID. Re-ingesting an ID replaces its chunks. Defaults to the file path",
				},
				"pattern": map[string]interface{}{
					"type":        "string",
					"description": "Glob selecting files when path is a directory (e.g. 'contracts/**/*.pdf')",
				},
			},
		},
	}
}

// searchDocumentsTool returns the tool definition for search_documents
func searchDocumentsTool(maxTopK int) mcp.Tool {
	return mcp.Tool{
		Name:        "search_documents",
		Description: "Find the stored document chunks most relevant to a natural language query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language question or description",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of chunks to return",
					"minimum":     1,
					"maximum":     maxTopK,
				},
			},
			Required: []string{"query"},
		},
	}
}

// deleteDocumentTool returns the tool definition for delete_document
func deleteDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_document",
		Description: "Remove every stored chunk of a document",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"document_id": map[string]interface{}{
					"type":        "string",
					"description": "ID the document was ingested under",
				},
			},
			Required: []string{"document_id"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report vector store contents and embedding configuration",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
