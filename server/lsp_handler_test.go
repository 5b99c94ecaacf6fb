package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/attackls/attack"
	"github.com/teranos/attackls/logger"
	"github.com/teranos/attackls/lsp"
	"github.com/teranos/attackls/server/clientlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.uber.org/zap/zapcore"
)

const testURI = protocol.DocumentUri("file:///notes/incident.md")

func newTestHandler(t *testing.T) (*GLSPHandler, *lsp.Service) {
	t.Helper()
	svc := newTestService(t)
	h := NewGLSPHandler(context.Background(), svc, "test")
	t.Cleanup(h.Close)
	return h, svc
}

func openDocument(t *testing.T, h *GLSPHandler, uri protocol.DocumentUri, text string) {
	t.Helper()
	err := h.TextDocumentDidOpen(nil, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, LanguageID: "markdown", Version: 1, Text: text},
	})
	require.NoError(t, err)
}

func completeAt(t *testing.T, h *GLSPHandler, uri protocol.DocumentUri, p protocol.Position, kind protocol.CompletionTriggerKind) []protocol.CompletionItem {
	t.Helper()
	params := &protocol.CompletionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri},
			Position:     p,
		},
	}
	if kind != 0 {
		params.Context = &protocol.CompletionContext{TriggerKind: kind}
	}
	result, err := h.TextDocumentCompletion(nil, params)
	require.NoError(t, err)
	items, ok := result.([]protocol.CompletionItem)
	require.True(t, ok, "completion result should be a list, got %T", result)
	return items
}

func hoverAt(t *testing.T, h *GLSPHandler, uri protocol.DocumentUri, p protocol.Position) *protocol.Hover {
	t.Helper()
	hover, err := h.TextDocumentHover(nil, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri},
			Position:     p,
		},
	})
	require.NoError(t, err)
	return hover
}

func TestGLSPHandler_Initialize(t *testing.T) {
	h, _ := newTestHandler(t)

	result, err := h.Initialize(nil, &protocol.InitializeParams{})
	require.NoError(t, err)

	res, ok := result.(protocol.InitializeResult)
	require.True(t, ok)
	require.NotNil(t, res.Capabilities.CompletionProvider)
	require.NotNil(t, res.Capabilities.CompletionProvider.ResolveProvider)
	assert.True(t, *res.Capabilities.CompletionProvider.ResolveProvider)
	assert.NotNil(t, res.Capabilities.HoverProvider)
	require.NotNil(t, res.ServerInfo)
	assert.Equal(t, "attackls", res.ServerInfo.Name)
}

func TestGLSPHandler_InitializationOptions(t *testing.T) {
	h, svc := newTestHandler(t)

	_, err := h.Initialize(nil, &protocol.InitializeParams{
		InitializationOptions: map[string]any{
			"attack": map[string]any{"description": "link", "completionFormat": "id"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, attack.ModeLink, svc.Settings().Description)
	assert.Equal(t, attack.FormatID, svc.Settings().Format)
}

func TestGLSPHandler_CompletionByName(t *testing.T) {
	h, _ := newTestHandler(t)
	openDocument(t, h, testURI, "Observed power")

	items := completeAt(t, h, testURI, pos(0, 14), 0)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "PowerShell", item.Label)
	require.NotNil(t, item.InsertText)
	assert.Equal(t, "T1059.001 PowerShell", *item.InsertText)
	require.NotNil(t, item.FilterText)
	assert.Equal(t, "Command and Scripting Interpreter: PowerShell", *item.FilterText)
	require.NotNil(t, item.Kind)
	assert.Equal(t, protocol.CompletionItemKindReference, *item.Kind)
	assert.Equal(t, "T1059.001", item.Data)
	assert.Nil(t, item.Documentation, "name matches are documented on resolve")
}

func TestGLSPHandler_CompletionShortTermReturnsFullSet(t *testing.T) {
	h, svc := newTestHandler(t)
	openDocument(t, h, testURI, "T1")

	items := completeAt(t, h, testURI, pos(0, 2), 0)
	assert.Len(t, items, 2*len(svc.Index().Active()))
}

func TestGLSPHandler_DeprecatedTag(t *testing.T) {
	h, _ := newTestHandler(t)
	openDocument(t, h, testURI, "Scripting")

	items := completeAt(t, h, testURI, pos(0, 9), 0)
	var scripting *protocol.CompletionItem
	for i := range items {
		if items[i].Label == "Scripting" {
			scripting = &items[i]
		}
	}
	require.NotNil(t, scripting)
	assert.Equal(t, []protocol.CompletionItemTag{protocol.CompletionItemTagDeprecated}, scripting.Tags)
	require.NotNil(t, scripting.Deprecated)
	assert.True(t, *scripting.Deprecated)
}

func TestGLSPHandler_DescriptionSearchNeedsManualTrigger(t *testing.T) {
	h, _ := newTestHandler(t)
	openDocument(t, h, testURI, "Subsystem")

	auto := completeAt(t, h, testURI, pos(0, 9), protocol.CompletionTriggerKindTriggerCharacter)
	assert.Empty(t, auto)

	manual := completeAt(t, h, testURI, pos(0, 9), protocol.CompletionTriggerKindInvoked)
	require.Len(t, manual, 1)
	assert.Equal(t, "Subsystem (description)", manual[0].Label)
	require.NotNil(t, manual[0].Kind)
	assert.Equal(t, protocol.CompletionItemKindText, *manual[0].Kind)

	doc, ok := manual[0].Documentation.(protocol.MarkupContent)
	require.True(t, ok)
	assert.Equal(t, protocol.MarkupKindMarkdown, doc.Kind)
	assert.Contains(t, doc.Value, "**Subsystem**")
}

func TestGLSPHandler_CompletionUnknownDocument(t *testing.T) {
	h, _ := newTestHandler(t)

	items := completeAt(t, h, "file:///never/opened.md", pos(0, 0), 0)
	assert.Empty(t, items)
	assert.Nil(t, hoverAt(t, h, "file:///never/opened.md", pos(0, 0)))
}

func TestGLSPHandler_Resolve(t *testing.T) {
	h, _ := newTestHandler(t)
	openDocument(t, h, testURI, "power")

	items := completeAt(t, h, testURI, pos(0, 5), 0)
	require.Len(t, items, 1)

	resolved, err := h.CompletionItemResolve(nil, &items[0])
	require.NoError(t, err)

	doc, ok := resolved.Documentation.(protocol.MarkupContent)
	require.True(t, ok, "resolved documentation should be markup")
	assert.Equal(t, protocol.MarkupKindMarkdown, doc.Kind)
	assert.True(t, strings.HasPrefix(doc.Value, "### Command and Scripting Interpreter: PowerShell"))
}

func TestGLSPHandler_ResolveKeepsExistingDocumentation(t *testing.T) {
	h, _ := newTestHandler(t)

	item := &protocol.CompletionItem{Label: "Subsystem (description)", Documentation: markdown("already here")}
	resolved, err := h.CompletionItemResolve(nil, item)
	require.NoError(t, err)
	assert.Equal(t, markdown("already here"), resolved.Documentation)
}

func TestGLSPHandler_ResolveUnknownLabel(t *testing.T) {
	h, _ := newTestHandler(t)

	resolved, err := h.CompletionItemResolve(nil, &protocol.CompletionItem{Label: "Not A Technique"})
	require.NoError(t, err)
	assert.Nil(t, resolved.Documentation)
}

func TestGLSPHandler_Hover(t *testing.T) {
	h, _ := newTestHandler(t)
	openDocument(t, h, testURI, "# Findings\nnaïve 😀 T1566 observed")

	hover := hoverAt(t, h, testURI, pos(1, 10))
	require.NotNil(t, hover)

	contents, ok := hover.Contents.(protocol.MarkupContent)
	require.True(t, ok)
	assert.Contains(t, contents.Value, "### Phishing")

	require.NotNil(t, hover.Range)
	assert.Equal(t, pos(1, 9), hover.Range.Start)
	assert.Equal(t, pos(1, 14), hover.Range.End)

	assert.Nil(t, hoverAt(t, h, testURI, pos(0, 3)), "no technique id on the heading")
}

func TestGLSPHandler_DidChange(t *testing.T) {
	h, _ := newTestHandler(t)
	openDocument(t, h, testURI, "nothing yet")
	assert.Nil(t, hoverAt(t, h, testURI, pos(0, 2)))

	err := h.TextDocumentDidChange(nil, &protocol.DidChangeTextDocumentParams{
		TextDocument:   protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: testURI}, Version: 2},
		ContentChanges: []any{protocol.TextDocumentContentChangeEventWhole{Text: "T1059 is back"}},
	})
	require.NoError(t, err)
	require.NotNil(t, hoverAt(t, h, testURI, pos(0, 2)))

	// ranged edit replacing "T1059" with "T1566"
	r := protocol.Range{Start: pos(0, 0), End: pos(0, 5)}
	err = h.TextDocumentDidChange(nil, &protocol.DidChangeTextDocumentParams{
		TextDocument:   protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: testURI}, Version: 3},
		ContentChanges: []any{protocol.TextDocumentContentChangeEvent{Range: &r, Text: "T1566"}},
	})
	require.NoError(t, err)

	text, ok := h.document(testURI)
	require.True(t, ok)
	assert.Equal(t, "T1566 is back", text)
}

func TestGLSPHandler_DidClose(t *testing.T) {
	h, _ := newTestHandler(t)
	openDocument(t, h, testURI, "T1059")

	require.NoError(t, h.TextDocumentDidClose(nil, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
	}))
	_, ok := h.document(testURI)
	assert.False(t, ok)
}

func TestGLSPHandler_DocumentLimit(t *testing.T) {
	h, _ := newTestHandler(t)

	for i := 0; i < maxDocumentsPerClient; i++ {
		openDocument(t, h, protocol.DocumentUri(fmt.Sprintf("file:///doc%d.md", i)), "T1059")
	}

	err := h.TextDocumentDidOpen(nil, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: "file:///one-too-many.md", Text: "T1059"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document cache limit reached")

	// re-opening a cached document is still allowed
	openDocument(t, h, "file:///doc0.md", "T1566")
}

func TestGLSPHandler_DidChangeConfiguration(t *testing.T) {
	h, svc := newTestHandler(t)

	err := h.WorkspaceDidChangeConfiguration(nil, &protocol.DidChangeConfigurationParams{
		Settings: map[string]any{"attack": map[string]any{"completionFormat": "id", "minTermLength": 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, attack.FormatID, svc.Settings().Format)
	assert.Equal(t, 3, svc.Settings().MinTermLength)

	openDocument(t, h, testURI, "LSA")
	items := completeAt(t, h, testURI, pos(0, 3), 0)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].InsertText)
	assert.Equal(t, "T1003.001", *items[0].InsertText)
}

func TestGLSPHandler_InvalidConfigurationIgnored(t *testing.T) {
	h, svc := newTestHandler(t)
	before := svc.Settings()

	for _, settings := range []any{
		map[string]any{"attack": map[string]any{"description": "verbose"}},
		map[string]any{"attack": map[string]any{"minTermLength": 0}},
		"not an object",
	} {
		require.NoError(t, h.WorkspaceDidChangeConfiguration(nil, &protocol.DidChangeConfigurationParams{Settings: settings}))
	}
	assert.Equal(t, before, svc.Settings())
}

func TestGLSPHandler_ShutdownAndReinitialize(t *testing.T) {
	h, _ := newTestHandler(t)
	openDocument(t, h, testURI, "power")

	require.NoError(t, h.Shutdown(nil))
	assert.Error(t, h.session().Err(), "shutdown ends the session context")
	assert.Empty(t, completeAt(t, h, testURI, pos(0, 5), 0), "documents are dropped on shutdown")

	_, err := h.Initialize(nil, &protocol.InitializeParams{})
	require.NoError(t, err)
	assert.NoError(t, h.session().Err())

	openDocument(t, h, testURI, "power")
	assert.Len(t, completeAt(t, h, testURI, pos(0, 5), 0), 1)
}

func TestGLSPHandler_SharedHandlerOutlivesOneShutdown(t *testing.T) {
	svc := newTestService(t)
	h := NewGLSPHandler(context.Background(), svc, "tcp")
	t.Cleanup(h.Close)

	// two TCP clients on the one handler
	for i := 0; i < 2; i++ {
		_, err := h.Initialize(nil, &protocol.InitializeParams{})
		require.NoError(t, err)
	}
	openDocument(t, h, testURI, "see T1059.001")

	require.NoError(t, h.Shutdown(nil))
	assert.NoError(t, h.session().Err(), "the other client is still connected")
	hover := hoverAt(t, h, testURI, pos(0, 6))
	require.NotNil(t, hover)
	assert.Contains(t, hover.Contents.(protocol.MarkupContent).Value, "PowerShell")

	require.NoError(t, h.Shutdown(nil))
	assert.Error(t, h.session().Err(), "last shutdown ends the session")
	assert.Nil(t, hoverAt(t, h, testURI, pos(0, 6)))
}

func TestGLSPHandler_CloseDoesNotBlockOnLogDelivery(t *testing.T) {
	h, _ := newTestHandler(t)
	hub := clientlog.NewHub()
	h.ForwardLogs(hub)

	release := make(chan struct{})
	delivering := make(chan struct{})
	notify := func(method string, params any) {
		close(delivering)
		<-release
	}
	_, err := h.Initialize(&glsp.Context{Notify: notify}, &protocol.InitializeParams{})
	require.NoError(t, err)

	hub.Send(h.ID(), protocol.LogMessageParams{Type: protocol.MessageTypeInfo, Message: "stuck"})
	<-delivering

	closed := make(chan struct{})
	go func() {
		h.Close()
		close(closed)
	}()

	// Close waits for the delivery, but the session stays readable meanwhile
	assert.Eventually(t, func() bool { return h.session().Err() != nil }, 5*time.Second, 10*time.Millisecond)
	close(release)
	<-closed
	assert.Equal(t, 0, hub.ClientCount())
}

func TestProtocolItemRoundTrip(t *testing.T) {
	item := lsp.CompletionItem{
		Label:       "Scripting",
		FilterText:  "Scripting",
		InsertText:  "T1064 Scripting",
		Detail:      "T1064 Scripting",
		Deprecated:  true,
		TechniqueID: "T1064",
	}

	out := toProtocolItem(item)
	back := fromProtocolItem(&out)
	assert.Equal(t, lsp.CompletionItem{Label: "Scripting", Deprecated: true, TechniqueID: "T1064"}, back)

	// an id-only item has no filter text
	out = toProtocolItem(lsp.CompletionItem{Label: "T1059", InsertText: "T1059", Detail: "T1059", TechniqueID: "T1059"})
	assert.Nil(t, out.FilterText)
	assert.Nil(t, out.Tags)
	assert.Nil(t, out.Deprecated)
}

// lspTestClient speaks JSON-RPC over a WebSocket, one message per frame
type lspTestClient struct {
	t      *testing.T
	conn   *websocket.Conn
	nextID int
}

func dialLSP(t *testing.T, baseURL string, header http.Header) *lspTestClient {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/lsp"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err, "Failed to connect WebSocket")
	t.Cleanup(func() { conn.Close() })

	return &lspTestClient{t: t, conn: conn}
}

func (c *lspTestClient) request(method string, params any) map[string]any {
	c.t.Helper()
	c.nextID++
	id := c.nextID

	require.NoError(c.t, c.conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}))

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg map[string]any
		require.NoError(c.t, c.conn.ReadJSON(&msg), "reading %s response", method)
		// skip server notifications
		if got, ok := msg["id"].(float64); ok && int(got) == id {
			require.Nil(c.t, msg["error"], "%s failed", method)
			return msg
		}
	}
}

func (c *lspTestClient) notify(method string, params any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	}))
}

// awaitNotification reads until the server sends method and returns its params
func (c *lspTestClient) awaitNotification(method string) map[string]any {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg map[string]any
		require.NoError(c.t, c.conn.ReadJSON(&msg), "waiting for %s", method)
		if msg["method"] == method {
			params, _ := msg["params"].(map[string]any)
			return params
		}
	}
}

func textPosition(uri string, line, character int) map[string]any {
	return map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"position":     map[string]any{"line": line, "character": character},
	}
}

// TestGLSPWebSocketSession drives a complete session over WebSocket:
// initialize → didOpen → completion → resolve → hover → shutdown
func TestGLSPWebSocketSession(t *testing.T) {
	_, ts := newTestServer(t, testServerConfig())
	client := dialLSP(t, ts.URL, nil)

	initResponse := client.request("initialize", map[string]any{
		"processId":    nil,
		"clientInfo":   map[string]any{"name": "TestClient", "version": "1.0"},
		"capabilities": map[string]any{},
	})
	assert.Equal(t, "2.0", initResponse["jsonrpc"])

	result := initResponse["result"].(map[string]any)
	capabilities := result["capabilities"].(map[string]any)
	assert.NotNil(t, capabilities["hoverProvider"], "Expected hoverProvider capability")
	completionProvider, ok := capabilities["completionProvider"].(map[string]any)
	require.True(t, ok, "Expected completionProvider capability")
	assert.Equal(t, true, completionProvider["resolveProvider"])
	assert.Equal(t, "attackls", result["serverInfo"].(map[string]any)["name"])

	client.notify("initialized", map[string]any{})

	uri := "file:///notes/incident.md"
	client.notify("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{
			"uri":        uri,
			"languageId": "markdown",
			"version":    1,
			"text":       "Observed T1059.001 and power",
		},
	})

	completion := client.request("textDocument/completion", textPosition(uri, 0, 28))
	items := completion["result"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "PowerShell", item["label"])
	assert.Equal(t, "T1059.001", item["data"])

	resolved := client.request("completionItem/resolve", item)
	doc := resolved["result"].(map[string]any)["documentation"].(map[string]any)
	assert.Equal(t, "markdown", doc["kind"])
	assert.Contains(t, doc["value"], "### Command and Scripting Interpreter: PowerShell")

	hover := client.request("textDocument/hover", textPosition(uri, 0, 12))
	hoverResult := hover["result"].(map[string]any)
	assert.Contains(t, hoverResult["contents"].(map[string]any)["value"], "PowerShell")
	hoverRange := hoverResult["range"].(map[string]any)
	assert.Equal(t, float64(9), hoverRange["start"].(map[string]any)["character"])
	assert.Equal(t, float64(18), hoverRange["end"].(map[string]any)["character"])

	noHover := client.request("textDocument/hover", textPosition(uri, 0, 2))
	assert.Nil(t, noHover["result"])

	shutdown := client.request("shutdown", nil)
	assert.Nil(t, shutdown["error"])
}

func TestGLSPWebSocket_ConfigurationChange(t *testing.T) {
	srv, ts := newTestServer(t, testServerConfig())
	client := dialLSP(t, ts.URL, nil)

	client.request("initialize", map[string]any{"capabilities": map[string]any{}})
	client.notify("workspace/didChangeConfiguration", map[string]any{
		"settings": map[string]any{"attack": map[string]any{"completionFormat": "link"}},
	})

	uri := "file:///a.md"
	client.notify("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{"uri": uri, "languageId": "markdown", "version": 1, "text": "t1566"},
	})
	completion := client.request("textDocument/completion", textPosition(uri, 0, 5))
	items := completion["result"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "https://attack.mitre.org/techniques/T1566", items[0].(map[string]any)["insertText"])

	assert.Equal(t, attack.FormatLink, srv.Service().Settings().Format)
}

func TestGLSPWebSocket_RequiresInitialize(t *testing.T) {
	_, ts := newTestServer(t, testServerConfig())
	client := dialLSP(t, ts.URL, nil)

	client.nextID++
	require.NoError(t, client.conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0",
		"id":      client.nextID,
		"method":  "textDocument/hover",
		"params":  textPosition("file:///a.md", 0, 0),
	}))

	var resp map[string]any
	require.NoError(t, client.conn.ReadJSON(&resp))
	assert.NotNil(t, resp["error"], "requests before initialize are rejected")
}

func TestGLSPWebSocket_OriginCheck(t *testing.T) {
	_, ts := newTestServer(t, testServerConfig())
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/lsp"

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://localhost:5173")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	conn.Close()
}

func TestGLSPWebSocket_ShutdownClosesSessions(t *testing.T) {
	srv, ts := newTestServer(t, testServerConfig())
	client := dialLSP(t, ts.URL, nil)
	client.request("initialize", map[string]any{"capabilities": map[string]any{}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	require.NoError(t, client.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.conn.ReadMessage()
	assert.Error(t, err, "server closes open sessions on shutdown")
}

func TestGLSPWebSocket_ForwardsLogs(t *testing.T) {
	hub := clientlog.NewHub()
	remove := logger.AddCore(clientlog.NewCore(zapcore.WarnLevel, hub))
	t.Cleanup(remove)

	srv, ts := newTestServer(t, testServerConfig())
	srv.ForwardLogs(hub)

	client := dialLSP(t, ts.URL, nil)
	client.request("initialize", map[string]any{"processId": nil, "capabilities": map[string]any{}})
	assert.Equal(t, 1, hub.ClientCount())

	client.notify("workspace/didChangeConfiguration", map[string]any{
		"settings": map[string]any{"attack": map[string]any{"description": "verbose"}},
	})

	params := client.awaitNotification(string(protocol.ServerWindowLogMessage))
	assert.EqualValues(t, protocol.MessageTypeWarning, params["type"])
	assert.Contains(t, params["message"], "[glsp] Ignoring invalid settings")

	client.request("shutdown", nil)
	assert.Equal(t, 0, hub.ClientCount())
}
