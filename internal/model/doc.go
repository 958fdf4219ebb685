// Package model defines the club records and socket message payloads shared
// by the views.
//
// Conventions:
//   - Every socket message is a JSON object with a "kind" discriminant
//   - Requests carry a uuid "requestId"; replies echo it
//   - Record IDs are integers assigned by the backend
//   - Dates and times are display strings (e.g. "Oct 15, 2024", "6:00 PM")
package model
