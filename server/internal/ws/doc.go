// Package ws implements the WebSocket hub for raptrack-server.
//
// Hub keeps a set of connected clients and pushes the stored reports to all
// of them on an interval (BroadcastInterval in the server config) and right
// after a report is ingested or thresholds are reloaded (Notify).
//
// Message format sent to clients:
//
//	{
//	  "event": "reports",
//	  "data":  [ /* stored reports, ordered by roster ID */ ]
//	}
//
// The upgrader accepts all origins. The server mounts the hub at /ws/stream.
package ws
