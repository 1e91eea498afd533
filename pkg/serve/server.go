// Package serve exposes a loading session over a newline-delimited JSON
// protocol, so a separate front-end can submit files and receive the
// resulting file lists.
package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/akernet/logbuddy/pkg/runner"
	"github.com/akernet/logbuddy/pkg/types"
)

// Version is the server protocol version
const Version = "1.0.0"

// Loader is the session the server drives.
type Loader interface {
	Load(ctx context.Context, path string) *runner.Handle
	Events() <-chan runner.Event
	Files() []types.Leaf
}

// Server manages one protocol conversation.
type Server struct {
	loader  Loader
	decoder *json.Decoder

	// mu guards encoder and pending.
	mu      sync.Mutex
	encoder *json.Encoder
	pending map[string]*runner.Handle
	wg      sync.WaitGroup
}

// NewServer creates a new streaming server
func NewServer(loader Loader, in io.Reader, out io.Writer) *Server {
	return &Server{
		loader:  loader,
		encoder: json.NewEncoder(out),
		decoder: json.NewDecoder(bufio.NewReader(in)),
		pending: make(map[string]*runner.Handle),
	}
}

// Run starts the server main loop. It returns after a "close" request or
// the end of input, once every load it started has reported its event.
func (s *Server) Run(ctx context.Context) error {
	s.sendReady()

	stop := make(chan struct{})
	forwarded := make(chan struct{})
	go s.forward(stop, forwarded)
	defer func() {
		close(stop)
		<-forwarded
	}()

	reqChan := make(chan Request, 1)
	errChan := make(chan error, 1)

	go func() {
		for {
			var req Request
			if err := s.decoder.Decode(&req); err != nil {
				errChan <- err
				return
			}
			select {
			case reqChan <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errChan:
			// Drain any pending requests before handling EOF
			for {
				select {
				case req := <-reqChan:
					if s.processRequest(ctx, req) {
						return s.drain(ctx)
					}
				default:
					if err != io.EOF {
						s.sendError("decode", err.Error())
					}
					return s.drain(ctx)
				}
			}
		case req := <-reqChan:
			if s.processRequest(ctx, req) {
				return s.drain(ctx)
			}
		}
	}
}

// processRequest handles a single request and returns true if the server should exit
func (s *Server) processRequest(ctx context.Context, req Request) bool {
	switch req.Type {
	case "load":
		s.handleLoad(ctx, req.Payload)
	case "cancel":
		s.handleCancel(req.Payload)
	case "files":
		s.handleFiles()
	case "close":
		return true
	default:
		s.sendError("unknown", "unknown request type: "+req.Type)
	}
	return false
}

// drain waits for outstanding loads to report.
func (s *Server) drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// forward writes session events as they arrive.
func (s *Server) forward(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	events := s.loader.Events()
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.sendEvent(ev)
		}
	}
}

func (s *Server) sendReady() {
	s.send("ready", ReadyData{Version: Version})
}

func (s *Server) handleLoad(ctx context.Context, payload json.RawMessage) {
	var p LoadPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError("load", err.Error())
		return
	}
	if p.Path == "" {
		s.sendError("load", "path is required")
		return
	}

	// Hold the lock so the acknowledgement is written before the event.
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.loader.Load(ctx, p.Path)
	s.pending[h.ID] = h
	s.wg.Add(1)
	s.encodeLocked("load", LoadData{Submission: h.ID, Source: h.Source})
}

func (s *Server) handleCancel(payload json.RawMessage) {
	var p CancelPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError("cancel", err.Error())
		return
	}

	s.mu.Lock()
	h, ok := s.pending[p.Submission]
	s.mu.Unlock()
	if !ok {
		s.sendError("cancel", "unknown submission: "+p.Submission)
		return
	}

	h.Cancel()
	s.send("cancel", CancelPayload{Submission: p.Submission})
}

func (s *Server) handleFiles() {
	files := s.loader.Files()
	if files == nil {
		files = []types.Leaf{}
	}
	s.send("files", FilesData{Files: files})
}

func (s *Server) sendEvent(ev runner.Event) {
	data := EventData{
		Submission: ev.Submission,
		Source:     ev.Source,
		Summary:    ev.Summary(),
		Files:      len(ev.Files),
	}
	if ev.Err != nil {
		data.Error = ev.Err.Error()
	} else {
		data.Leaves = ev.Result.Leaves
		data.Failures = ev.Result.FailureRecords()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.encodeLocked("event", data)
	if _, ok := s.pending[ev.Submission]; ok {
		delete(s.pending, ev.Submission)
		s.wg.Done()
	}
}

func (s *Server) send(respType string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encodeLocked(respType, v)
}

func (s *Server) encodeLocked(respType string, v any) {
	data, _ := json.Marshal(v)
	s.encoder.Encode(Response{
		Success: true,
		Type:    respType,
		Data:    data,
	})
}

func (s *Server) sendError(reqType, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encoder.Encode(Response{
		Success: false,
		Type:    reqType,
		Error:   msg,
	})
}
