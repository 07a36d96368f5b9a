package server

import (
	"context"
	"log"

	"github.com/alimasry/go-review-tracker/oplog"
	"github.com/alimasry/go-review-tracker/patch"
	"github.com/alimasry/go-review-tracker/review"
	"github.com/alimasry/go-review-tracker/store"
)

type request struct {
	client *Client
	msg    ClientMessage
}

// Session manages the review of a single document.
// All operations are serialized through a single goroutine.
type Session struct {
	docID   string
	doc     *review.Document
	store   store.DocumentStore
	clients map[*Client]bool

	incoming chan request
	join     chan *Client
	leave    chan *Client
	stop     chan struct{}
}

func newSession(doc *review.Document, st store.DocumentStore) *Session {
	return &Session{
		docID:    doc.ID,
		doc:      doc,
		store:    st,
		clients:  make(map[*Client]bool),
		incoming: make(chan request, 64),
		join:     make(chan *Client, 16),
		leave:    make(chan *Client, 16),
		stop:     make(chan struct{}),
	}
}

// Run is the session's main loop. It serializes all operations.
func (s *Session) Run() {
	for {
		select {
		case c := <-s.join:
			s.handleJoin(c)
		case c := <-s.leave:
			s.handleLeave(c)
		case req := <-s.incoming:
			s.handle(req)
		case <-s.stop:
			return
		}
	}
}

func (s *Session) handle(req request) {
	switch req.msg.Type {
	case MsgOp:
		s.handleOp(req)
	case MsgUndo:
		s.handleUndo(req)
	case MsgRedo:
		s.handleRedo(req)
	case MsgPreview:
		s.handlePreview(req)
	case MsgExport:
		s.handleExport(req)
	case MsgLine:
		s.handleLine(req)
	default:
		req.client.sendError("unknown message type: " + req.msg.Type)
	}
}

func (s *Session) handleJoin(c *Client) {
	s.clients[c] = true
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	// Send current document state to the joining client. Replay problems
	// are logged; the state is still usable.
	state, err := s.doc.State()
	if err != nil {
		log.Printf("session %s: replay: %v", s.docID, err)
	}
	c.sendMsg(ServerMessage{
		Type:       MsgDoc,
		DocID:      s.docID,
		Source:     s.doc.Source(),
		Elements:   state,
		Operations: s.doc.Operations(),
		Sequence:   s.doc.Sequence(),
		CanUndo:    s.doc.CanUndo(),
		CanRedo:    s.doc.CanRedo(),
		Clients:    s.clientInfos(),
	})

	// Notify other clients about the new user.
	for other := range s.clients {
		if other != c {
			other.sendMsg(ServerMessage{
				Type:     MsgJoin,
				ClientID: c.ID,
				Name:     c.Name,
				Color:    c.Color,
			})
		}
	}
}

func (s *Session) handleLeave(c *Client) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	close(c.send)

	// Notify others.
	for other := range s.clients {
		other.sendMsg(ServerMessage{
			Type:     MsgLeave,
			ClientID: c.ID,
		})
	}
}

func (s *Session) handleOp(req request) {
	if req.msg.Op == nil {
		req.client.sendError("op message without an operation")
		return
	}
	op := *req.msg.Op
	if op.UserID == "" {
		op.UserID = req.client.ID
	}

	applied, err := s.doc.Apply(op)
	if err != nil {
		log.Printf("session %s: apply error: %v", s.docID, err)
		req.client.sendError("apply error: " + err.Error())
		return
	}

	// Persist. The store and the log must agree, so a failed write is
	// taken back out of the log.
	if err := s.store.AppendOperation(context.Background(), s.docID, applied); err != nil {
		log.Printf("session %s: persist error: %v", s.docID, err)
		s.doc.Truncate(s.doc.Len() - 1)
		req.client.sendError("failed to save operation")
		return
	}
	s.commit(req.client, applied)
}

func (s *Session) handleUndo(req request) {
	if !s.doc.Undo() {
		req.client.sendError("nothing to undo")
		return
	}
	if err := s.store.TruncateOperations(context.Background(), s.docID, s.doc.Len()); err != nil {
		log.Printf("session %s: persist undo: %v", s.docID, err)
		s.doc.Redo()
		req.client.sendError("failed to save undo")
		return
	}

	// Everyone, the sender included, drops the newest operation.
	for c := range s.clients {
		c.sendMsg(ServerMessage{
			Type:     MsgUndo,
			DocID:    s.docID,
			Sequence: s.doc.Sequence(),
			CanUndo:  s.doc.CanUndo(),
			CanRedo:  s.doc.CanRedo(),
			ClientID: req.client.ID,
		})
	}
}

func (s *Session) handleRedo(req request) {
	op, ok := s.doc.Redo()
	if !ok {
		req.client.sendError("nothing to redo")
		return
	}
	if err := s.store.AppendOperation(context.Background(), s.docID, op); err != nil {
		log.Printf("session %s: persist redo: %v", s.docID, err)
		s.doc.Undo()
		req.client.sendError("failed to save redo")
		return
	}
	s.commit(req.client, op)
}

// commit acks op to its sender and broadcasts it to everyone else.
func (s *Session) commit(sender *Client, op oplog.Operation) {
	sender.sendMsg(ServerMessage{
		Type:     MsgAck,
		DocID:    s.docID,
		Sequence: op.Sequence,
		CanUndo:  s.doc.CanUndo(),
		CanRedo:  s.doc.CanRedo(),
		Op:       &op,
	})
	for c := range s.clients {
		if c != sender {
			c.sendMsg(ServerMessage{
				Type:     MsgOp,
				DocID:    s.docID,
				Sequence: op.Sequence,
				CanUndo:  s.doc.CanUndo(),
				CanRedo:  s.doc.CanRedo(),
				Op:       &op,
				ClientID: sender.ID,
			})
		}
	}
}

func (s *Session) handlePreview(req request) {
	id := req.msg.ElementID
	preview, err := s.doc.Preview(id)
	if err != nil {
		req.client.sendError("preview error: " + err.Error())
		return
	}
	html, err := s.doc.PreviewHTML(id)
	if err != nil {
		// Malformed markup still renders; the error only reports it.
		log.Printf("session %s: preview %s: %v", s.docID, id, err)
	}
	req.client.sendMsg(ServerMessage{
		Type:      MsgPreview,
		DocID:     s.docID,
		ElementID: id,
		Preview:   preview,
		HTML:      html,
		Sequence:  s.doc.Sequence(),
	})
}

func (s *Session) handleExport(req request) {
	mode, err := patch.ParseMode(req.msg.Mode)
	if err != nil {
		req.client.sendError(err.Error())
		return
	}
	res, err := s.doc.Export(mode)
	if err != nil {
		log.Printf("session %s: export error: %v", s.docID, err)
		req.client.sendError("export error: " + err.Error())
		return
	}
	if len(res.Skipped) > 0 {
		log.Printf("session %s: export skipped %d change(s)", s.docID, len(res.Skipped))
	}
	req.client.sendMsg(ServerMessage{
		Type:     MsgExport,
		DocID:    s.docID,
		Text:     res.Text,
		Applied:  res.Applied,
		Skipped:  res.Skipped,
		Sequence: s.doc.Sequence(),
	})
}

func (s *Session) handleLine(req request) {
	section := -1
	if req.msg.Section != nil {
		section = *req.msg.Section
	}
	req.client.sendMsg(ServerMessage{
		Type:     MsgLine,
		DocID:    s.docID,
		Line:     s.doc.CurrentLine(section, req.msg.Line, req.msg.Since),
		Sequence: s.doc.Sequence(),
	})
}

func (s *Session) clientInfos() []ClientInfo {
	infos := make([]ClientInfo, 0, len(s.clients))
	for c := range s.clients {
		infos = append(infos, c.Info())
	}
	return infos
}
