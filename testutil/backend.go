package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/genstream/protocol"
)

// Artifact is one output file descriptor as the backend reports it
type Artifact struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// Submission is a job the fake backend accepted
type Submission struct {
	JobID    string
	ClientID string
	Prompt   json.RawMessage
}

// Rejection makes the fake backend refuse submissions
type Rejection struct {
	Status     int
	Type       string
	Message    string
	NodeErrors map[string]string
}

// FakeBackend is an in-process generation backend. It serves the event
// stream on /ws and the request/response endpoints /prompt, /history/{id},
// /interrupt and /view. Tests script the event stream with the Send helpers.
type FakeBackend struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	conns       map[*websocket.Conn]string
	submissions []Submission
	interrupts  []string
	history     map[string]map[string][]Artifact
	files       map[Artifact][]byte
	rejection   *Rejection
	refuse      bool
	onSubmit    func(Submission)

	connected   chan string
	interrupted chan string
}

// NewFakeBackend starts a fake backend that is shut down when the test ends
func NewFakeBackend(t testing.TB) *FakeBackend {
	t.Helper()

	b := &FakeBackend{
		conns:       make(map[*websocket.Conn]string),
		history:     make(map[string]map[string][]Artifact),
		files:       make(map[Artifact][]byte),
		connected:   make(chan string, 64),
		interrupted: make(chan string, 64),
	}

	r := chi.NewRouter()
	r.Get("/ws", b.handleWS)
	r.Post("/prompt", b.handlePrompt)
	r.Get("/history/{id}", b.handleHistory)
	r.Post("/interrupt", b.handleInterrupt)
	r.Get("/view", b.handleView)

	b.server = httptest.NewServer(r)
	t.Cleanup(b.Close)
	return b
}

// URL returns the http base address of the backend
func (b *FakeBackend) URL() string {
	return b.server.URL
}

// Close drops every connection and stops the server
func (b *FakeBackend) Close() {
	b.DropConnections()
	b.server.Close()
}

func (b *FakeBackend) handleWS(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	refuse := b.refuse
	b.mu.Unlock()
	if refuse {
		http.Error(w, "backend unavailable", http.StatusServiceUnavailable)
		return
	}

	clientID := r.URL.Query().Get("clientId")
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	b.conns[conn] = clientID
	frame, _ := protocol.EncodeText(protocol.KindStatus, statusPayload(0, clientID))
	_ = conn.WriteMessage(websocket.TextMessage, frame)
	b.mu.Unlock()

	select {
	case b.connected <- clientID:
	default:
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	b.mu.Lock()
	delete(b.conns, conn)
	b.mu.Unlock()
	conn.Close()
}

type promptRequest struct {
	Prompt   json.RawMessage `json:"prompt"`
	ClientID string          `json:"client_id"`
}

func (b *FakeBackend) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Prompt) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":       map[string]string{"type": "invalid_prompt", "message": "no prompt provided"},
			"node_errors": map[string]any{},
		})
		return
	}

	b.mu.Lock()
	rejection := b.rejection
	b.mu.Unlock()
	if rejection != nil {
		nodeErrors := make(map[string]any, len(rejection.NodeErrors))
		for node, msg := range rejection.NodeErrors {
			nodeErrors[node] = map[string]any{
				"errors":     []map[string]string{{"type": "value_not_valid", "message": msg}},
				"class_type": "Node",
			}
		}
		writeJSON(w, rejection.Status, map[string]any{
			"error":       map[string]string{"type": rejection.Type, "message": rejection.Message},
			"node_errors": nodeErrors,
		})
		return
	}

	sub := Submission{JobID: uuid.NewString(), ClientID: req.ClientID, Prompt: req.Prompt}

	b.mu.Lock()
	b.submissions = append(b.submissions, sub)
	number := len(b.submissions)
	hook := b.onSubmit
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"prompt_id":   sub.JobID,
		"number":      number,
		"node_errors": map[string]any{},
	})

	if hook != nil {
		go hook(sub)
	}
}

func (b *FakeBackend) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b.mu.Lock()
	outputs, ok := b.history[id]
	b.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}

	nodes := make(map[string]any, len(outputs))
	for node, artifacts := range outputs {
		nodes[node] = map[string]any{"images": artifacts}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		id: map[string]any{
			"outputs": nodes,
			"status":  map[string]any{"status_str": "success", "completed": true},
		},
	})
}

func (b *FakeBackend) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PromptID string `json:"prompt_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	b.interrupts = append(b.interrupts, req.PromptID)
	b.mu.Unlock()

	select {
	case b.interrupted <- req.PromptID:
	default:
	}
	w.WriteHeader(http.StatusOK)
}

func (b *FakeBackend) handleView(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := Artifact{Filename: q.Get("filename"), Subfolder: q.Get("subfolder"), Type: q.Get("type")}

	b.mu.Lock()
	data, ok := b.files[key]
	b.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

// SetOutputs records the history entry for jobID
func (b *FakeBackend) SetOutputs(jobID string, outputs map[string][]Artifact) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history[jobID] = outputs
}

// AddFile makes data downloadable through /view
func (b *FakeBackend) AddFile(a Artifact, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[a] = data
}

// Reject makes every following submission fail with r. Nil accepts again.
func (b *FakeBackend) Reject(r *Rejection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejection = r
}

// OnSubmit runs fn in its own goroutine after each accepted submission
func (b *FakeBackend) OnSubmit(fn func(Submission)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onSubmit = fn
}

// RefuseConnections makes /ws answer 503 while refuse is set
func (b *FakeBackend) RefuseConnections(refuse bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refuse = refuse
}

// DropConnections closes every event stream connection without a close frame
func (b *FakeBackend) DropConnections() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.conns {
		conn.UnderlyingConn().Close()
	}
}

// Connections returns the number of open event stream connections
func (b *FakeBackend) Connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Submissions returns the accepted submissions in order
func (b *FakeBackend) Submissions() []Submission {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Submission(nil), b.submissions...)
}

// Interrupts returns the job ids of received interrupt requests; an empty
// string is an "interrupt current" request.
func (b *FakeBackend) Interrupts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.interrupts...)
}

// WaitConnected waits for the next event stream connection and returns its client id
func (b *FakeBackend) WaitConnected(t testing.TB, timeout time.Duration) string {
	t.Helper()
	select {
	case id := <-b.connected:
		return id
	case <-time.After(timeout):
		t.Fatalf("no event stream connection within %v", timeout)
		return ""
	}
}

// WaitInterrupt waits for the next interrupt request and returns its job id
func (b *FakeBackend) WaitInterrupt(t testing.TB, timeout time.Duration) string {
	t.Helper()
	select {
	case id := <-b.interrupted:
		return id
	case <-time.After(timeout):
		t.Fatalf("no interrupt within %v", timeout)
		return ""
	}
}

// SendRaw writes a text frame to every connection
func (b *FakeBackend) SendRaw(payload []byte) {
	b.broadcast(websocket.TextMessage, payload)
}

// SendBinary writes a binary frame to every connection
func (b *FakeBackend) SendBinary(payload []byte) {
	b.broadcast(websocket.BinaryMessage, payload)
}

// Send writes a {"type","data"} text frame to every connection
func (b *FakeBackend) Send(kind string, data any) {
	frame, err := protocol.EncodeText(kind, data)
	if err != nil {
		panic(err)
	}
	b.SendRaw(frame)
}

// SendExecuting reports node running for jobID. An empty node is sent as
// null, which ends the job.
func (b *FakeBackend) SendExecuting(jobID, node string) {
	var n any
	if node != "" {
		n = node
	}
	b.Send(protocol.KindExecuting, map[string]any{"node": n, "prompt_id": jobID})
}

// SendProgress reports step progress for jobID
func (b *FakeBackend) SendProgress(jobID, node string, value, max int) {
	b.Send(protocol.KindProgress, map[string]any{
		"value": value, "max": max, "prompt_id": jobID, "node": node,
	})
}

// SendStatus reports the queue length
func (b *FakeBackend) SendStatus(queueRemaining int) {
	b.Send(protocol.KindStatus, statusPayload(queueRemaining, ""))
}

// SendPreview writes a binary preview frame
func (b *FakeBackend) SendPreview(format protocol.ImageFormat, image []byte) {
	b.SendBinary(protocol.EncodePreview(format, image))
}

// Complete runs jobID through nodes and then sends its terminal event
func (b *FakeBackend) Complete(jobID string, nodes ...string) {
	for _, node := range nodes {
		b.SendExecuting(jobID, node)
	}
	b.SendExecuting(jobID, "")
}

func (b *FakeBackend) broadcast(msgType int, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.conns {
		_ = conn.WriteMessage(msgType, payload)
	}
}

func statusPayload(queueRemaining int, sid string) map[string]any {
	payload := map[string]any{
		"status": map[string]any{
			"exec_info": map[string]any{"queue_remaining": queueRemaining},
		},
	}
	if sid != "" {
		payload["sid"] = sid
	}
	return payload
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
