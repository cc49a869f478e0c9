// Package web is the HTTP channel adapter: a small REST API for managing
// chat sessions and a WebSocket endpoint per session.
//
// Routes:
//
//	GET    /api/v1/ping                 liveness, answers "pong"
//	GET    /api/v1/session              list sessions with a response stream
//	POST   /api/v1/session              create a session with a generated id
//	POST   /api/v1/session/{id}         create a session with a chosen id
//	DELETE /api/v1/session/{id}         drop a session and close its sockets
//	GET    /api/v1/session/{id}/chat    WebSocket chat
//
// Client frames are {"user": "...", "content": "..."} and become requests
// for core.HTTPSession(id). Responses for that session are pushed to every
// open socket as {"content": "...", "thinking": bool} frames, with "error"
// set when the dispatcher reports a failure. REST replies use the envelope
// {"status": 200, "message": null, "data": ...}.
package web
