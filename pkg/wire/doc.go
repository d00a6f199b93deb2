// Package wire defines the JSON messages exchanged with the smart heating
// server over the realtime channel.
//
// # Outbound commands
//
// Every client-to-server command is a flat JSON object carrying a session
// scoped monotonic id and a type discriminator:
//
//	{"id": 7, "type": "auth", "access_token": "..."}
//	{"id": 8, "type": "smart_heating/subscribe"}
//	{"id": 9, "type": "ping"}
//
// Ids are assigned from an IDSequence before serialization and are never
// reused within a session.
//
// # Inbound messages
//
// Server-to-client messages are a discriminated union on the "type" field:
//
//	{"type": "auth_required"}
//	{"type": "auth_ok"}
//	{"type": "auth_invalid", "error": {"code": "...", "message": "..."}}
//	{"id": 8, "type": "result", "success": true, "result": {"event": "...", "data": {...}}}
//	{"type": "event", "result": {"data": {"area": {...}}}}
//
// plus the legacy flat variants "pong", "areas_updated", "area_updated" and
// "area_deleted" which carry their payload directly under "data".
//
// Unrecognized types classify as KindUnknown and must be ignored by callers,
// never treated as fatal.
package wire
