package server

import "encoding/json"

// reviewMessages are the request types served by a review session.
var reviewMessages = map[string]bool{
	MsgOp:      true,
	MsgUndo:    true,
	MsgRedo:    true,
	MsgPreview: true,
	MsgExport:  true,
	MsgLine:    true,
}

// dispatch decodes one frame from the reviewer. A join goes to the hub,
// which opens or resumes the review; every other request goes to the
// session the reviewer has joined.
func (c *Client) dispatch(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("invalid message format")
		return
	}

	s := c.currentSession()
	switch {
	case msg.Type == MsgJoin:
		if s != nil {
			c.sendError("already joined to " + s.docID)
			return
		}
		c.hub.joinDoc <- joinRequest{
			client:   c,
			docID:    msg.DocID,
			source:   msg.Source,
			elements: msg.Elements,
		}
	case !reviewMessages[msg.Type]:
		c.sendError("unknown message type: " + msg.Type)
	case s == nil:
		c.sendError("not joined to a document")
	default:
		s.incoming <- request{client: c, msg: msg}
	}
}

// currentSession is the review the client has joined, or nil.
func (c *Client) currentSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}
