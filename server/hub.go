package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/alimasry/go-review-tracker/oplog"
	"github.com/alimasry/go-review-tracker/review"
	"github.com/alimasry/go-review-tracker/store"
)

type joinRequest struct {
	client   *Client
	docID    string
	source   string
	elements []oplog.Element
}

// Hub manages document sessions and routes clients to the right session.
type Hub struct {
	store    store.DocumentStore
	sessions map[string]*Session
	mu       sync.RWMutex

	joinDoc chan joinRequest
}

func NewHub(st store.DocumentStore) *Hub {
	return &Hub{
		store:    st,
		sessions: make(map[string]*Session),
		joinDoc:  make(chan joinRequest, 64),
	}
}

// Run is the hub's main loop.
func (h *Hub) Run() {
	for req := range h.joinDoc {
		h.handleJoinDoc(req)
	}
}

func (h *Hub) handleJoinDoc(req joinRequest) {
	if req.docID == "" {
		req.client.sendError("join without a document id")
		return
	}

	h.mu.Lock()
	s, ok := h.sessions[req.docID]
	if !ok {
		doc, err := h.load(context.Background(), req)
		if err != nil {
			log.Printf("hub: failed to load doc %q: %v", req.docID, err)
			h.mu.Unlock()
			req.client.sendError("failed to load document")
			return
		}
		s = newSession(doc, h.store)
		h.sessions[req.docID] = s
		go s.Run()
	}
	h.mu.Unlock()

	s.join <- req.client
}

// load resumes a stored review, or starts one from the join request when
// the store does not have it.
func (h *Hub) load(ctx context.Context, req joinRequest) (*review.Document, error) {
	info, err := h.store.Get(ctx, req.docID)
	if errors.Is(err, store.ErrNotFound) {
		doc, err := review.New(req.docID, req.source, req.elements)
		if err != nil {
			return nil, err
		}
		if err := h.store.Create(ctx, req.docID, req.source, req.elements); err != nil {
			return nil, fmt.Errorf("create: %w", err)
		}
		return doc, nil
	}
	if err != nil {
		return nil, err
	}

	ops, err := h.store.GetOperations(ctx, req.docID, 0)
	if err != nil {
		return nil, fmt.Errorf("operations: %w", err)
	}
	return review.Restore(info.ID, info.Source, info.Elements, ops)
}

// GetSession returns the session for a document, if active.
func (h *Hub) GetSession(docID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[docID]
}

// Close stops every session.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.sessions {
		close(s.stop)
		delete(h.sessions, id)
	}
}
