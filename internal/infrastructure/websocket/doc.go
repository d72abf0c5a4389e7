// Package websocket provides the SocketLink: the relay's WebSocket side.
//
// A SocketLink holds at most one session, either dialled out (client role)
// or accepted from a single peer on an HTTP path (server role). It shares
// the connection-management loop of the link package, so dial, serve,
// backoff and shutdown behave exactly like the BrokerLink.
//
// # Framing
//
//   - envelope: {"channel": "...", "payload": <json or string>}
//   - raw: each frame is the payload, carried on the link's default channel
//
// A malformed envelope is a protocol error: the session ends and the link
// reconnects.
//
// # Liveness
//
// The write loop sends a ping after keepalive without data. Any frame,
// ping or pong from the peer extends the read deadline to idle_timeout;
// expiry ends the session with ErrIdleTimeout.
//
// # Security Considerations
//
//   - Client role sends a bearer token (static or from a credentials
//     provider) and verifies wss:// peers, min TLS 1.2
//   - Server role validates an HS256 peer token bound to the link name
//   - A second concurrent peer is refused with 409 Conflict
//
// # Usage
//
//	sl, err := websocket.New(websocket.Options{Config: sockCfg, Inbox: inbox})
//	if err != nil {
//	    return err
//	}
//	router.Handle(sl.Path(), sl) // server role only
//	go sl.Run(ctx)
//	sl.Send("commands", payload)
package websocket
