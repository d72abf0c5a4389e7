package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	ws "github.com/gorilla/websocket"
)

// Home Assistant websocket API message types.
const (
	haAuthRequired = "auth_required"
	haAuth         = "auth"
	haAuthOK       = "auth_ok"
	haAuthInvalid  = "auth_invalid"
)

type haMessage struct {
	ID          int    `json:"id,omitempty"`
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
	EventType   string `json:"event_type,omitempty"`
	Message     string `json:"message,omitempty"`
}

// homeAssistantHandshake authenticates against the Home Assistant
// websocket API and subscribes to state_changed events.
func (l *SocketLink) homeAssistantHandshake(ctx context.Context, conn *ws.Conn, token string) error {
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	//nolint:errcheck // Deadlines are cleared by Serve
	conn.SetReadDeadline(deadline)
	//nolint:errcheck // Deadlines are cleared by Serve
	conn.SetWriteDeadline(deadline)

	var msg haMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("%w: reading greeting: %w", ErrHandshake, err)
	}
	if msg.Type != haAuthRequired {
		return fmt.Errorf("%w: expected %s, got %q", ErrHandshake, haAuthRequired, msg.Type)
	}

	if err := conn.WriteJSON(haMessage{Type: haAuth, AccessToken: token}); err != nil {
		return fmt.Errorf("%w: sending auth: %w", ErrHandshake, err)
	}

	msg = haMessage{}
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("%w: reading auth result: %w", ErrHandshake, err)
	}
	switch msg.Type {
	case haAuthOK:
	case haAuthInvalid:
		l.invalidateToken()
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg.Message)
	default:
		return fmt.Errorf("%w: expected %s, got %q", ErrHandshake, haAuthOK, msg.Type)
	}

	sub := haMessage{ID: 1, Type: "subscribe_events", EventType: "state_changed"}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("%w: subscribing: %w", ErrHandshake, err)
	}

	//nolint:errcheck // Serve sets its own read deadline
	conn.SetWriteDeadline(time.Time{})
	l.logger.Info("home assistant handshake complete", "link", l.name)
	return nil
}

// haEvent is the subset of an event frame used by ParseStateChange.
type haEvent struct {
	Type  string `json:"type"`
	Event struct {
		Data struct {
			EntityID string `json:"entity_id"`
			NewState *struct {
				State      string         `json:"state"`
				Attributes map[string]any `json:"attributes"`
			} `json:"new_state"`
		} `json:"data"`
	} `json:"event"`
}

// StateChange is one entity update extracted from a Home Assistant frame.
type StateChange struct {
	EntityID string
	State    string
	Unit     string
}

// ParseStateChange extracts the entity update from a Home Assistant event
// frame. ok is false for frames that are not state_changed events with a
// new_state.
func ParseStateChange(frame []byte) (StateChange, bool) {
	var ev haEvent
	if err := json.Unmarshal(frame, &ev); err != nil || ev.Type != "event" {
		return StateChange{}, false
	}
	data := ev.Event.Data
	if data.EntityID == "" || data.NewState == nil {
		return StateChange{}, false
	}
	unit, _ := data.NewState.Attributes["unit_of_measurement"].(string)
	return StateChange{EntityID: data.EntityID, State: data.NewState.State, Unit: unit}, true
}
