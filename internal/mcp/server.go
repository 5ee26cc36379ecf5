// Package mcp provides a Model Context Protocol server for docufill.
//
// It exposes the extraction and slot-filling engine as MCP tools (extract,
// start, reply, skip, progress, assemble) and the document inventory as an
// MCP resource, over stdio transport.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/docufill/docufill/internal/assemble"
	"github.com/docufill/docufill/internal/dialogue"
	"github.com/docufill/docufill/internal/extract"
	"github.com/docufill/docufill/internal/ingest"
	"github.com/docufill/docufill/internal/store"
	"github.com/docufill/docufill/internal/validate"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store      store.Store
	Extractor  *extract.Extractor
	Validators *validate.Set
	Version    string // version string for MCP server info
}

// dbMu serializes all MCP tool calls that touch the database.
// The mcp-go library dispatches handlers concurrently via goroutines.
// SQLite (even with WAL) supports only one writer at a time, and the
// session load/transition/save sequence must not interleave between calls.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all docufill tools and
// resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Docufill",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	validators := cfg.Validators
	if validators == nil {
		validators = validate.NewSet()
	}
	engine := dialogue.NewEngine(validators)
	ingestor := ingest.NewIngestor(cfg.Store, cfg.Extractor, nil)

	registerExtractTool(s, ingestor)
	registerStartTool(s, cfg.Store, engine)
	registerReplyTool(s, cfg.Store, engine)
	registerSkipTool(s, cfg.Store, engine)
	registerProgressTool(s, cfg.Store)
	registerAssembleTool(s, cfg.Store)

	registerDocumentsResource(s, cfg.Store)

	return s
}

// --- Tools ---

func registerExtractTool(s *server.MCPServer, ingestor *ingest.Ingestor) {
	tool := mcp.NewTool("docufill_extract",
		mcp.WithDescription("Ingest a document template and extract its fill-in placeholders. Returns the document id and the detected slots with their inferred types and prompts."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The document template text to scan for placeholders"),
		),
		mcp.WithString("name",
			mcp.Description("Document name for later reference (default: 'mcp-document')"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		content, err := req.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError("content is required"), nil
		}
		if strings.TrimSpace(content) == "" {
			return mcp.NewToolResultError("document content cannot be empty"), nil
		}

		name := "mcp-document"
		if n, err := req.RequireString("name"); err == nil && n != "" {
			name = n
		}

		docID, slots, err := ingestor.IngestText(ctx, name, content)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("extract error: %v", err)), nil
		}

		out := map[string]any{
			"document_id": docID,
			"slot_count":  len(slots),
			"slots":       slots,
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStartTool(s *server.MCPServer, st store.Store, engine *dialogue.Engine) {
	tool := mcp.NewTool("docufill_start",
		mcp.WithDescription("Start a slot-filling conversation over an extracted document. Returns the new session id and the first prompt (or the completion message if the document has no pending slots)."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("document_id",
			mcp.Required(),
			mcp.Description("Id of a previously extracted document"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		docVal, err := req.RequireFloat("document_id")
		if err != nil {
			return mcp.NewToolResultError("document_id is required"), nil
		}

		sess, before, reg, msgs, err := beginSession(ctx, st, engine, int64(docVal))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("start error: %v", err)), nil
		}

		if err := persist(ctx, st, sess, before, reg); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("saving session: %v", err)), nil
		}

		out := map[string]any{
			"session_id": sess.ID,
			"state":      sess.State,
			"messages":   msgs,
			"progress":   dialogue.Progress(reg),
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerReplyTool(s *server.MCPServer, st store.Store, engine *dialogue.Engine) {
	tool := mcp.NewTool("docufill_reply",
		mcp.WithDescription("Submit the user's answer for the slot currently awaiting input. Invalid values are rejected with a reason and the prompt is re-asked; valid values fill the slot and advance to the next one. With a document_id instead of a session_id, a short trigger message (e.g. \"start\") opens a new session."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id",
			mcp.Description("Session id returned by docufill_start or a prior docufill_reply"),
		),
		mcp.WithNumber("document_id",
			mcp.Description("Id of an extracted document; starts a session when no session_id is given and the text is a start trigger"),
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The user's answer for the current slot, or a start trigger"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}
		sessionID := ""
		if sid, err := req.RequireString("session_id"); err == nil {
			sessionID = sid
		}

		var (
			sess   *dialogue.Session
			before []extract.Slot
			reg    *extract.Registry
			msgs   []dialogue.Message
		)
		if sessionID == "" {
			// First message without a session: a trigger phrase plus a
			// document id opens the dialogue, matching a frontend that
			// sends "start" before anything else.
			docVal, err := req.RequireFloat("document_id")
			if err != nil {
				return mcp.NewToolResultError("session_id or document_id is required"), nil
			}
			if !dialogue.IsTrigger(text) {
				return mcp.NewToolResultError("no session yet: send a short start message or call docufill_start"), nil
			}
			sess, before, reg, msgs, err = beginSession(ctx, st, engine, int64(docVal))
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("starting session: %v", err)), nil
			}
		} else {
			sess, before, reg, err = loadSession(ctx, st, sessionID)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("loading session: %v", err)), nil
			}
			msgs, err = engine.Receive(sess, reg, text)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("reply error: %v", err)), nil
			}
		}

		if err := persist(ctx, st, sess, before, reg); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("saving session: %v", err)), nil
		}

		out := map[string]any{
			"session_id": sess.ID,
			"state":      sess.State,
			"messages":   msgs,
			"progress":   dialogue.Progress(reg),
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerSkipTool(s *server.MCPServer, st store.Store, engine *dialogue.Engine) {
	tool := mcp.NewTool("docufill_skip",
		mcp.WithDescription("Skip the slot currently awaiting input and advance to the next pending one. Skipped slots keep their placeholder text at assembly unless strict policy is used."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id returned by docufill_start"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}

		sess, before, reg, err := loadSession(ctx, st, sessionID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("loading session: %v", err)), nil
		}

		msgs, err := engine.Skip(sess, reg)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("skip error: %v", err)), nil
		}

		if err := persist(ctx, st, sess, before, reg); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("saving session: %v", err)), nil
		}

		out := map[string]any{
			"session_id": sess.ID,
			"state":      sess.State,
			"messages":   msgs,
			"progress":   dialogue.Progress(reg),
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerProgressTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("docufill_progress",
		mcp.WithDescription("Report fill progress for a session: state, resolved/total counts, and the per-slot status list."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id returned by docufill_start"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}

		sess, _, reg, err := loadSession(ctx, st, sessionID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("loading session: %v", err)), nil
		}

		resolved, total := reg.Progress()
		out := map[string]any{
			"session_id":  sess.ID,
			"document_id": sess.DocumentID,
			"state":       sess.State,
			"resolved":    resolved,
			"total":       total,
			"progress":    dialogue.Progress(reg),
			"slots":       reg.Slots(),
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerAssembleTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("docufill_assemble",
		mcp.WithDescription("Produce the final document text with every filled value substituted into its placeholder. Fails while pending slots remain."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("document_id",
			mcp.Required(),
			mcp.Description("Id of the extracted document to assemble"),
		),
		mcp.WithString("policy",
			mcp.Description("Skipped-slot policy: 'keep' leaves placeholder tokens in place (default), 'strict' rejects documents with skipped slots"),
			mcp.Enum("keep", "strict"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		docVal, err := req.RequireFloat("document_id")
		if err != nil {
			return mcp.NewToolResultError("document_id is required"), nil
		}
		docID := int64(docVal)

		policy := assemble.KeepToken
		if p, err := req.RequireString("policy"); err == nil && p == "strict" {
			policy = assemble.Strict
		}

		doc, err := st.GetDocument(ctx, docID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("loading document: %v", err)), nil
		}
		slots, err := st.GetSlots(ctx, docID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("loading slots: %v", err)), nil
		}

		text, err := assemble.Assemble(assemble.Snapshot{
			DocumentID: docID,
			Text:       doc.Content,
			Registry:   extract.NewRegistry(slots),
		}, policy)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("assemble error: %v", err)), nil
		}

		return mcp.NewToolResultText(text), nil
	})
}

// --- Resources ---

func registerDocumentsResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"docufill://documents",
		"Extracted Documents",
		mcp.WithResourceDescription("All ingested document templates with their ids, names, and content hashes."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		docs, err := st.ListDocuments(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing documents: %w", err)
		}

		type docSummary struct {
			ID          int64     `json:"id"`
			Name        string    `json:"name"`
			ContentHash string    `json:"content_hash"`
			CreatedAt   time.Time `json:"created_at"`
		}
		summaries := make([]docSummary, 0, len(docs))
		for _, d := range docs {
			summaries = append(summaries, docSummary{
				ID: d.ID, Name: d.Name, ContentHash: d.ContentHash, CreatedAt: d.CreatedAt,
			})
		}

		data, _ := json.MarshalIndent(summaries, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

// --- Helpers ---

// loadSession loads a session and its document's slots, returning a
// pre-transition snapshot of the slots alongside the registry. The registry
// mutates its backing slice in place, so the snapshot must be a copy or
// change detection in persist would compare a slot against itself.
func loadSession(ctx context.Context, st store.Store, sessionID string) (*dialogue.Session, []extract.Slot, *extract.Registry, error) {
	sess, err := st.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	slots, err := st.GetSlots(ctx, sess.DocumentID)
	if err != nil {
		return nil, nil, nil, err
	}
	reg := extract.NewRegistry(slots)
	return sess, reg.Slots(), reg, nil
}

// beginSession opens a new session over a document's slots and runs the
// starting transition, returning the pre-transition slot snapshot for persist.
func beginSession(ctx context.Context, st store.Store, engine *dialogue.Engine, docID int64) (*dialogue.Session, []extract.Slot, *extract.Registry, []dialogue.Message, error) {
	if _, err := st.GetDocument(ctx, docID); err != nil {
		return nil, nil, nil, nil, err
	}
	slots, err := st.GetSlots(ctx, docID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	reg := extract.NewRegistry(slots)
	before := reg.Slots()
	sess := dialogue.NewSession(uuid.NewString(), docID, time.Now().UTC())
	msgs, err := engine.Start(sess, reg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return sess, before, reg, msgs, nil
}

// persist saves the session and writes back every slot the transition
// changed.
func persist(ctx context.Context, st store.Store, sess *dialogue.Session, before []extract.Slot, reg *extract.Registry) error {
	after := reg.Slots()
	for i, sl := range after {
		if i < len(before) && before[i].Status == sl.Status && before[i].Value == sl.Value {
			continue
		}
		if err := st.UpdateSlot(ctx, sess.DocumentID, sl); err != nil {
			return err
		}
	}
	return st.SaveSession(ctx, sess)
}
