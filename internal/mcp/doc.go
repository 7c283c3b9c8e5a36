// Package mcp implements the Model Context Protocol (MCP) server for Legal Brain.
//
// The MCP server exposes four tools to AI assistants:
//   - ingest_document: Chunk, embed and store a document or a directory of documents
//   - search_documents: Return the chunks most relevant to a natural language query
//   - delete_document: Remove a document's chunks
//   - get_status: Report store contents and embedding configuration
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Logs go to stderr because stdout carries the protocol.
//
// # Tool: ingest_document
//
//	Request:
//	{
//	  "name": "ingest_document",
//	  "arguments": {
//	    "path": "/contracts/lease-2024.pdf",
//	    "document_id": "lease-2024"
//	  }
//	}
//
//	Response:
//	{
//	  "ingested": true,
//	  "document_id": "lease-2024",
//	  "chunks": 42,
//	  "stored": 42,
//	  "tokens_used": 18250,
//	  "duration_ms": 2310
//	}
//
// Raw text can be sent with "text" instead of "path"; a document_id is then
// required. A directory path ingests every supported file below it, optionally
// narrowed with "pattern", and reports per-run statistics instead.
//
// # Tool: search_documents
//
//	Request:
//	{
//	  "name": "search_documents",
//	  "arguments": {
//	    "query": "who is responsible for roof repairs?",
//	    "top_k": 3
//	  }
//	}
//
//	Response:
//	{
//	  "query": "who is responsible for roof repairs?",
//	  "top_k": 3,
//	  "total_results": 3,
//	  "results": [
//	    {
//	      "rank": 1,
//	      "document_id": "lease-2024",
//	      "chunk_index": 7,
//	      "page": 4,
//	      "score": 0.83,
//	      "content": "The Landlord shall maintain the roof ..."
//	    }
//	  ]
//	}
//
// # Error Handling
//
// Handlers return *MCPError values:
//
//	{
//	  "error": {
//	    "code": -32005,
//	    "message": "embedding failed",
//	    "data": {
//	      "document_id": "lease-2024",
//	      "chunk_index": 20,
//	      "resume_index": 20,
//	      "error": "..."
//	    }
//	  }
//	}
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error
//   - -32001: Path not found
//   - -32002: Ingestion in progress
//   - -32003: Document has no text
//   - -32004: Empty query
//   - -32005: Embedding provider failed
//   - -32006: Vector store failed
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "legalbrain": {
//	      "command": "/usr/local/bin/legalbrain",
//	      "env": {
//	        "OPENAI_API_KEY": "your-api-key",
//	        "LEGALBRAIN_STORE__BACKEND": "sqlite"
//	      }
//	    }
//	  }
//	}
package mcp
