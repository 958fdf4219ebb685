// Package keepalive implements the backend keep-alive pinger.
//
// The pinger:
//   - Pings the backend health endpoint on start and then every 12 minutes
//   - Keeps free-tier hosts from idling the backend out
//   - Tracks state (idle, pinging, success, error), ping count and last result
//   - Refuses a manual ping while another one is in flight
package keepalive
