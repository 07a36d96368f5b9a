package server

import (
	"encoding/json"

	"github.com/alimasry/go-review-tracker/oplog"
	"github.com/alimasry/go-review-tracker/patch"
)

// Message types exchanged over WebSocket.
const (
	MsgJoin    = "join"
	MsgLeave   = "leave"
	MsgOp      = "op"
	MsgAck     = "ack"
	MsgDoc     = "doc"
	MsgError   = "error"
	MsgUndo    = "undo"
	MsgRedo    = "redo"
	MsgPreview = "preview"
	MsgExport  = "export"
	MsgLine    = "line"
)

// ClientMessage is a message from client to server.
type ClientMessage struct {
	Type  string `json:"type"`
	DocID string `json:"docId,omitempty"`

	// Source and Elements create the document on join when the store does
	// not have it yet.
	Source   string          `json:"source,omitempty"`
	Elements []oplog.Element `json:"elements,omitempty"`

	Op        *oplog.Operation `json:"op,omitempty"`
	ElementID string           `json:"elementId,omitempty"`
	Mode      string           `json:"mode,omitempty"`

	// Section is optional; without it line shifts are matched by line only.
	Section *int   `json:"section,omitempty"`
	Line    int    `json:"line,omitempty"`
	Since   uint64 `json:"since,omitempty"`
}

// ServerMessage is a message from server to client.
type ServerMessage struct {
	Type       string            `json:"type"`
	DocID      string            `json:"docId,omitempty"`
	Source     string            `json:"source,omitempty"`
	Elements   []oplog.Element   `json:"elements,omitempty"`
	Operations []oplog.Operation `json:"operations,omitempty"`
	Sequence   uint64            `json:"sequence"`
	CanUndo    bool              `json:"canUndo"`
	CanRedo    bool              `json:"canRedo"`
	Op         *oplog.Operation  `json:"op,omitempty"`
	ElementID  string            `json:"elementId,omitempty"`
	Preview    string            `json:"preview,omitempty"`
	HTML       string            `json:"html,omitempty"`
	Text       string            `json:"text,omitempty"`
	Applied    []patch.Applied   `json:"applied,omitempty"`
	Skipped    []patch.Skipped   `json:"skipped,omitempty"`
	Line       int               `json:"line,omitempty"`
	ClientID   string            `json:"clientId,omitempty"`
	Name       string            `json:"name,omitempty"`
	Color      string            `json:"color,omitempty"`
	Message    string            `json:"message,omitempty"`
	Clients    []ClientInfo      `json:"clients,omitempty"`
}

// ClientInfo describes a connected user.
type ClientInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Encode serializes a ServerMessage to JSON bytes.
func (m ServerMessage) Encode() []byte {
	b, _ := json.Marshal(m)
	return b
}
