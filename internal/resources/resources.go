// Package resources implements MCP resource handlers for debugging sessions.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (deebo://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/snagasuri/deebo-prototype/internal/coordinator"
	"github.com/snagasuri/deebo-prototype/internal/memory"
	"github.com/snagasuri/deebo-prototype/internal/session"
	"github.com/snagasuri/deebo-prototype/internal/tools"
)

// URI layout.
const (
	SessionsURI      = "deebo://sessions"
	sessionPrefix    = "deebo://sessions/"
	SessionTemplate  = sessionPrefix + "{session_id}"
	memoryPrefix     = "deebo://memory/"
	MemoryTemplate   = memoryPrefix + "{project_id}/{document}"
	jsonMIMEType     = "application/json"
	markdownMIMEType = "text/markdown"
)

// Handler manages deebo resource endpoints.
type Handler struct {
	sessions *session.Manager
	coord    *coordinator.Coordinator
	bank     *memory.Bank // nil when the memory bank is disabled
}

// NewHandler creates a resource Handler with its dependencies. bank may be nil.
func NewHandler(sessions *session.Manager, coord *coordinator.Coordinator, bank *memory.Bank) *Handler {
	return &Handler{sessions: sessions, coord: coord, bank: bank}
}

// SessionsResource returns the MCP resource definition listing every session.
func (h *Handler) SessionsResource() mcp.Resource {
	return mcp.NewResource(
		SessionsURI,
		"Debug Sessions",
		mcp.WithResourceDescription("Every debugging session this server knows about, with its status"),
		mcp.WithMIMEType(jsonMIMEType),
	)
}

type sessionSummary struct {
	ID        string         `json:"id"`
	Status    session.Status `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// HandleSessions returns the session list as JSON, oldest first.
func (h *Handler) HandleSessions(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	list := h.sessions.List()
	out := make([]sessionSummary, 0, len(list))
	for _, s := range list {
		snap := s.Snapshot()
		out = append(out, sessionSummary{ID: snap.ID, Status: snap.Status, CreatedAt: snap.CreatedAt, UpdatedAt: snap.UpdatedAt})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling sessions: %w", err)
	}
	return textResource(req.Params.URI, jsonMIMEType, string(data)), nil
}

// SessionResourceTemplate returns the MCP resource template for one session.
func (h *Handler) SessionResourceTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		SessionTemplate,
		"Debug Session",
		mcp.WithTemplateDescription("Status envelope of one debugging session, same as the check tool"),
		mcp.WithTemplateMIMEType(jsonMIMEType),
	)
}

// HandleSession returns a session's status envelope.
func (h *Handler) HandleSession(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	id := strings.TrimPrefix(uri, sessionPrefix)
	if id == "" || id == uri || strings.Contains(id, "/") {
		return errorResource(uri, "expected "+SessionTemplate), nil
	}
	sess, ok := h.sessions.Get(id)
	if !ok {
		return textResource(uri, jsonMIMEType, session.ErrorResponse(id, "Session not found: "+id).JSON()), nil
	}
	return textResource(uri, jsonMIMEType, tools.Check(sess, h.coord).JSON()), nil
}

// MemoryResourceTemplate returns the MCP resource template for a project's
// memory bank documents.
func (h *Handler) MemoryResourceTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		MemoryTemplate,
		"Memory Bank Document",
		mcp.WithTemplateDescription("A project's activeContext or progress document, as the agents read it"),
		mcp.WithTemplateMIMEType(markdownMIMEType),
	)
}

// HandleMemory returns one memory bank document.
func (h *Handler) HandleMemory(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	if h.bank == nil {
		return errorResource(uri, "memory bank is disabled"), nil
	}
	project, doc, ok := strings.Cut(strings.TrimPrefix(uri, memoryPrefix), "/")
	if !ok || project == "" || strings.ContainsAny(project, `/\.`) {
		return errorResource(uri, "expected "+MemoryTemplate), nil
	}

	var file string
	switch strings.TrimSuffix(doc, ".md") {
	case memory.KindActiveContext:
		file = memory.ActiveContextFile
	case memory.KindProgress:
		file = memory.ProgressFile
	default:
		return errorResource(uri, fmt.Sprintf("unknown document %q (want activeContext or progress)", doc)), nil
	}

	text, err := h.bank.ReadDocument(project, file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	return textResource(uri, markdownMIMEType, text), nil
}

func textResource(uri, mimeType, text string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: mimeType, Text: text},
	}
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return textResource(uri, "text/plain", fmt.Sprintf("Error: %s", message))
}
