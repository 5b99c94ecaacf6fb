package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/teranos/attackls/am"
	"github.com/teranos/attackls/errors"
	"github.com/teranos/attackls/internal/util"
	"github.com/teranos/attackls/logger"
	"github.com/teranos/attackls/lsp"
	"github.com/teranos/attackls/server/clientlog"
	"github.com/teranos/attackls/version"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"
	"go.uber.org/zap"
)

const (
	// maxDocumentsPerClient limits document cache size to prevent memory exhaustion
	maxDocumentsPerClient = 100
)

// GLSPHandler implements the LSP methods of one session on top of lsp.Service.
//
// Lookups run under a session context that ends on shutdown, on Close, or when
// the server stops; an ended context makes them resolve as empty.
type GLSPHandler struct {
	service   *lsp.Service
	logger    *zap.SugaredLogger
	id        string
	parent    context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	documents map[string]string // URI → document content cache
	logs      *clientlog.Hub    // nil = logs stay on the server
	sessions  int               // initialized clients; TCP connections share one handler
	metrics   *metrics
	mu        sync.RWMutex
}

// NewGLSPHandler creates a session handler. parent bounds every lookup it runs.
func NewGLSPHandler(parent context.Context, service *lsp.Service, transport string) *GLSPHandler {
	id := uuid.New().String()
	h := &GLSPHandler{
		service:   service,
		logger:    logger.ComponentLogger("glsp").With(logger.FieldConnection, id, logger.FieldTransport, transport),
		id:        id,
		parent:    logger.WithConnection(parent, id),
		documents: make(map[string]string),
	}
	h.ctx, h.cancel = context.WithCancel(h.parent)
	return h
}

// ForwardLogs sends this session's log entries, and entries not tied to any
// session, to the client as window/logMessage once it initializes.
func (h *GLSPHandler) ForwardLogs(hub *clientlog.Hub) {
	h.logs = hub
}

// ID returns the session's connection id
func (h *GLSPHandler) ID() string {
	return h.id
}

// Close cancels outstanding lookups and drops cached documents
func (h *GLSPHandler) Close() {
	h.mu.Lock()
	h.cancel()
	h.documents = make(map[string]string)
	h.sessions = 0
	h.mu.Unlock()

	// the drain may be blocked writing to a dead connection
	if h.logs != nil {
		h.logs.Unregister(h.id)
	}
}

// release ends one client's session and reports whether none remain
func (h *GLSPHandler) release() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions > 0 {
		h.sessions--
	}
	return h.sessions == 0
}

// renew counts an initializing client and starts a new session context after a previous shutdown.
// TCP clients share one handler and may initialize again after another client shut down.
func (h *GLSPHandler) renew() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions++
	if h.ctx.Err() != nil {
		h.ctx, h.cancel = context.WithCancel(h.parent)
	}
}

func (h *GLSPHandler) session() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctx
}

// Protocol returns the glsp method table for this session
func (h *GLSPHandler) Protocol() *protocol.Handler {
	return &protocol.Handler{
		Initialize:                      h.Initialize,
		Initialized:                     h.Initialized,
		Shutdown:                        h.Shutdown,
		Exit:                            h.Exit,
		SetTrace:                        h.SetTrace,
		CancelRequest:                   h.CancelRequest,
		WorkspaceDidChangeConfiguration: h.WorkspaceDidChangeConfiguration,
		TextDocumentDidOpen:             h.TextDocumentDidOpen,
		TextDocumentDidChange:           h.TextDocumentDidChange,
		TextDocumentDidClose:            h.TextDocumentDidClose,
		TextDocumentCompletion:          h.TextDocumentCompletion,
		CompletionItemResolve:           h.CompletionItemResolve,
		TextDocumentHover:               h.TextDocumentHover,
	}
}

func newGLSPServer(h *GLSPHandler, debug bool) *glspserver.Server {
	return glspserver.NewServer(h.Protocol(), version.Name, debug)
}

// Initialize handles LSP initialize request.
// initializationOptions may carry the same settings as workspace/didChangeConfiguration.
func (h *GLSPHandler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	client := ""
	if params.ClientInfo != nil {
		client = params.ClientInfo.Name
	}
	h.renew()
	if h.logs != nil && ctx != nil && ctx.Notify != nil {
		h.logs.Register(h.id, ctx.Notify)
	}
	h.logger.Infow("LSP client initializing", "client", client)

	if params.InitializationOptions != nil {
		h.applySettings(params.InitializationOptions)
	}

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities := protocol.ServerCapabilities{
		CompletionProvider: &protocol.CompletionOptions{
			ResolveProvider: util.Ptr(true),
		},
		HoverProvider: &protocol.HoverOptions{},
		TextDocumentSync: &protocol.TextDocumentSyncOptions{
			OpenClose: util.Ptr(true),
			Change:    &syncKind,
		},
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    version.Name,
			Version: util.Ptr(version.Get().ServerVersion()),
		},
	}, nil
}

// Initialized is called after client receives InitializeResult
func (h *GLSPHandler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	h.logger.Infow("LSP client initialized")
	return nil
}

// Shutdown handles LSP shutdown request. The session context and documents are
// dropped once the last initialized client of the handler shuts down.
func (h *GLSPHandler) Shutdown(ctx *glsp.Context) error {
	last := h.release()
	h.logger.Infow("LSP client shutting down", "last_session", last)
	if last {
		h.Close()
	}
	return nil
}

// Exit precedes glsp closing the connection
func (h *GLSPHandler) Exit(ctx *glsp.Context) error {
	h.logger.Debugw("LSP client exit")
	return nil
}

// SetTrace accepts $/setTrace; tracing is controlled by the server's verbosity
func (h *GLSPHandler) SetTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	h.logger.Debugw("Trace level requested", "value", params.Value)
	return nil
}

// CancelRequest is logged only: glsp handles one request at a time per
// connection, so the target has already completed when this arrives.
func (h *GLSPHandler) CancelRequest(ctx *glsp.Context, params *protocol.CancelParams) error {
	h.logger.Debugw("Cancel requested", logger.FieldRequestID, params.ID.Value)
	return nil
}

// WorkspaceDidChangeConfiguration reconfigures the language service
func (h *GLSPHandler) WorkspaceDidChangeConfiguration(ctx *glsp.Context, params *protocol.DidChangeConfigurationParams) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorw("Panic in configuration handler", "panic", r)
			err = nil
		}
	}()

	h.applySettings(params.Settings)
	return nil
}

// applySettings merges an editor settings payload over the current settings.
// Invalid payloads are logged and leave the settings untouched.
func (h *GLSPHandler) applySettings(payload any) {
	current := h.service.Settings()

	cfg, err := am.DecodeSettings(payload, current.Config())
	if err != nil {
		h.logger.Warnw("Ignoring invalid settings",
			logger.FieldError, err,
			"hints", errors.FlattenHints(err),
		)
		return
	}

	settings, err := lsp.SettingsFromConfig(cfg)
	if err != nil {
		h.logger.Warnw("Ignoring invalid settings", logger.FieldError, err)
		return
	}

	if settings != current {
		h.service.Configure(settings)
		logger.SetDebug(settings.Debug)
		h.logger.Infow("Settings changed",
			logger.FieldMode, settings.Description,
			logger.FieldFormat, settings.Format,
			"min_term_length", settings.MinTermLength,
			"max_description_matches", settings.MaxDescriptionMatches,
			"debug", settings.Debug,
		)
	}
}

// TextDocumentDidOpen handles document open notifications
func (h *GLSPHandler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	uri := string(params.TextDocument.URI)

	// Re-opening an already cached document does not count against the limit
	if _, exists := h.documents[uri]; !exists {
		if len(h.documents) >= maxDocumentsPerClient {
			h.logger.Warnw("Document cache limit reached, rejecting new document",
				logger.FieldURI, uri,
				"current_count", len(h.documents),
				"max_allowed", maxDocumentsPerClient,
			)
			return errors.Newf("document cache limit reached (%d documents open)", maxDocumentsPerClient)
		}
	}

	h.documents[uri] = params.TextDocument.Text

	h.logger.Debugw("Document opened",
		logger.FieldURI, uri,
		"length", len(params.TextDocument.Text),
		"total_documents", len(h.documents),
	)
	return nil
}

// TextDocumentDidChange handles document change notifications
func (h *GLSPHandler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	uri := string(params.TextDocument.URI)

	for _, change := range params.ContentChanges {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			h.documents[uri] = c.Text
		case protocol.TextDocumentContentChangeEvent:
			// we advertise full sync, but apply ranged edits from clients that send them anyway
			if c.Range != nil {
				text := h.documents[uri]
				start, end := offsetAt(text, c.Range.Start), offsetAt(text, c.Range.End)
				if start <= end && end <= len(text) {
					h.documents[uri] = text[:start] + c.Text + text[end:]
				}
			}
		}
	}

	h.logger.Debugw("Document changed",
		logger.FieldURI, uri,
		"changes", len(params.ContentChanges),
	)
	return nil
}

// TextDocumentDidClose handles document close notifications
func (h *GLSPHandler) TextDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	uri := string(params.TextDocument.URI)
	delete(h.documents, uri)

	h.logger.Debugw("Document closed", logger.FieldURI, uri)
	return nil
}

func (h *GLSPHandler) document(uri protocol.DocumentUri) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	text, ok := h.documents[string(uri)]
	return text, ok
}

// TextDocumentCompletion provides technique completions for the word at the cursor
func (h *GLSPHandler) TextDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (result any, err error) {
	// Panic recovery: if completion logic panics, return empty list instead of crashing
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorw("Panic in completion handler",
				"panic", r,
				logger.FieldURI, params.TextDocument.URI,
			)
			result = []protocol.CompletionItem{}
			err = nil
		}
	}()

	text, ok := h.document(params.TextDocument.URI)
	if !ok {
		h.logger.Debugw("Completion for unknown document", logger.FieldURI, params.TextDocument.URI)
		return []protocol.CompletionItem{}, nil
	}

	trigger := lsp.TriggerAuto
	if params.Context != nil && params.Context.TriggerKind == protocol.CompletionTriggerKindInvoked {
		trigger = lsp.TriggerManual
	}

	req := lsp.CompletionRequest{
		Text:    text,
		Offset:  offsetAt(text, params.Position),
		Trigger: trigger,
	}

	h.logger.Debugw("LSP completion",
		logger.FieldURI, params.TextDocument.URI,
		"line", params.Position.Line,
		"character", params.Position.Character,
		"trigger", trigger,
	)

	items, err := h.service.GetCompletions(h.session(), req)
	if err != nil {
		h.logger.Errorw("Completion error", logger.FieldError, err)
		return []protocol.CompletionItem{}, nil
	}

	completionItems := make([]protocol.CompletionItem, len(items))
	for i, item := range items {
		completionItems[i] = toProtocolItem(item)
	}

	h.metrics.completed(lookupCompletion, len(completionItems))
	h.logger.Debugw("LSP completion result", logger.FieldCount, len(completionItems))
	return completionItems, nil
}

// CompletionItemResolve attaches the technique description to a completion item
func (h *GLSPHandler) CompletionItemResolve(ctx *glsp.Context, params *protocol.CompletionItem) (result *protocol.CompletionItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorw("Panic in resolve handler", "panic", r, "label", params.Label)
			result = params
			err = nil
		}
	}()

	if params.Documentation != nil {
		return params, nil
	}

	resolved, err := h.service.Resolve(h.session(), fromProtocolItem(params))
	if err != nil {
		h.logger.Errorw("Resolve error", logger.FieldError, err)
		return params, nil
	}

	h.metrics.lookup(lookupResolve, resolved.Documentation != "")
	if resolved.Documentation != "" {
		params.Documentation = markdown(resolved.Documentation)
	}
	return params, nil
}

// TextDocumentHover describes the technique id under the cursor
func (h *GLSPHandler) TextDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (result *protocol.Hover, err error) {
	// Panic recovery: if hover logic panics, return nil instead of crashing
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorw("Panic in hover handler",
				"panic", r,
				logger.FieldURI, params.TextDocument.URI,
			)
			result = nil
			err = nil
		}
	}()

	text, ok := h.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	hover, err := h.service.Hover(h.session(), text, offsetAt(text, params.Position))
	h.metrics.lookup(lookupHover, err == nil && hover != nil)
	if err != nil || hover == nil {
		return nil, nil
	}

	h.logger.Debugw("LSP hover result", logger.FieldTechnique, hover.TechniqueID)

	r := protocol.Range{
		Start: positionAt(text, hover.Range.Start),
		End:   positionAt(text, hover.Range.End),
	}
	return &protocol.Hover{
		Contents: markdown(hover.Contents),
		Range:    &r,
	}, nil
}

// Helper functions

func markdown(value string) protocol.MarkupContent {
	return protocol.MarkupContent{
		Kind:  protocol.MarkupKindMarkdown,
		Value: value,
	}
}

func toProtocolItem(item lsp.CompletionItem) protocol.CompletionItem {
	kind := protocol.CompletionItemKindReference
	if item.Documentation != "" {
		kind = protocol.CompletionItemKindText // description match
	}

	out := protocol.CompletionItem{
		Label:      item.Label,
		Kind:       &kind,
		Detail:     util.PtrOrNil(item.Detail),
		FilterText: util.PtrOrNil(item.FilterText),
		InsertText: util.PtrOrNil(item.InsertText),
		Data:       item.TechniqueID,
	}
	if item.Documentation != "" {
		out.Documentation = markdown(item.Documentation)
	}
	if item.Deprecated {
		out.Tags = []protocol.CompletionItemTag{protocol.CompletionItemTagDeprecated}
		out.Deprecated = util.Ptr(true)
	}
	return out
}

func fromProtocolItem(item *protocol.CompletionItem) lsp.CompletionItem {
	out := lsp.CompletionItem{Label: item.Label}

	if item.Deprecated != nil && *item.Deprecated {
		out.Deprecated = true
	}
	for _, tag := range item.Tags {
		if tag == protocol.CompletionItemTagDeprecated {
			out.Deprecated = true
		}
	}
	if id, ok := item.Data.(string); ok {
		out.TechniqueID = id
	}
	return out
}

// upgrader is built per request so allowed origins follow config reloads
func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
}

// HandleGLSPWebSocket upgrades HTTP to WebSocket and serves one LSP session on it
func (s *Server) HandleGLSPWebSocket(w http.ResponseWriter, r *http.Request) {
	s.logger.Infow("GLSP WebSocket connection request", logger.FieldRemote, r.RemoteAddr)

	if s.ctx.Err() != nil {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.logger.Warnw("Failed to upgrade WebSocket", logger.FieldRemote, r.RemoteAddr, logger.FieldError, err)
		return
	}

	h := s.newHandler(am.TransportWebSocket)
	if !s.trackConnection(conn, h.ID()) {
		s.logger.Warnw("Max connections reached, rejecting session",
			logger.FieldRemote, r.RemoteAddr,
			"max_connections", MaxConnections,
		)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many sessions"))
		_ = conn.Close()
		return
	}
	defer s.untrackConnection(conn)
	defer h.Close()
	defer s.metrics.session(am.TransportWebSocket)()

	s.logger.Infow("Serving GLSP over WebSocket",
		logger.FieldRemote, r.RemoteAddr,
		logger.FieldConnection, h.ID(),
	)

	// blocks until the connection closes
	newGLSPServer(h, s.debug).ServeWebSocket(conn)

	s.logger.Infow("GLSP WebSocket connection closed",
		logger.FieldRemote, r.RemoteAddr,
		logger.FieldConnection, h.ID(),
	)
}
