/*
Package chat implements the text chat relay: decoding inbound frames into the
canonical message envelope and fanning them out to the other room members.

This file defines the wire envelope and the decoding rules. The structured
JSON envelope is canonical; the freeform heuristics below exist for legacy
clients that still send raw text.
*/
package chat

import (
	"encoding/json"
	"strings"
)

// ServerName is the sender tag applied to freeform and system messages.
const ServerName = "server"

// serverMarker is the legacy prefix marking a freeform frame as a server
// message. The marker is stripped before forwarding.
const serverMarker = "server:"

// Envelope is the wire-level chat message exchanged over a connection.
type Envelope struct {
	// Username is the sender's display name as claimed by the sender.
	Username string `json:"username"`

	// Message is the plain-text body.
	Message string `json:"message"`
}

// parseStructured reports whether payload is a canonical envelope: a JSON
// object carrying both fields with string values. Anything else falls back to
// the freeform path.
func parseStructured(payload []byte) (Envelope, bool) {
	var probe struct {
		Username *string `json:"username"`
		Message  *string `json:"message"`
	}

	if err := json.Unmarshal(payload, &probe); err != nil {
		return Envelope{}, false
	}
	if probe.Username == nil || probe.Message == nil {
		return Envelope{}, false
	}

	return Envelope{Username: *probe.Username, Message: *probe.Message}, true
}

// decodeFreeform turns raw text into an envelope using the legacy heuristics:
// a recognized server marker is stripped and tagged as ServerName, a
// "name: body" frame splits on the first colon, and anything else is treated
// as an opaque server message.
func decodeFreeform(text string) Envelope {
	if rest, ok := strings.CutPrefix(text, serverMarker); ok {
		return Envelope{Username: ServerName, Message: strings.TrimSpace(rest)}
	}

	if name, body, ok := strings.Cut(text, ":"); ok {
		if trimmedName := strings.TrimSpace(name); trimmedName != "" {
			return Envelope{Username: trimmedName, Message: strings.TrimSpace(body)}
		}
	}

	return Envelope{Username: ServerName, Message: text}
}

// serverNotice builds a marshaled ServerName-tagged envelope for system
// announcements such as joins and leaves.
func serverNotice(text string) ([]byte, error) {
	return json.Marshal(Envelope{Username: ServerName, Message: text})
}
