// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Maintains a single WebSocket connection shared by every view
//   - Exposes connection status and the most recent inbound message
//   - Notifies observers synchronously, in transport delivery order
//   - Reconnects after a fixed delay whenever the socket closes
//   - Sends outbound messages best-effort (dropped with a warning while disconnected)
package connection
