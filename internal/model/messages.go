package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Message kinds. Server → client
const (
	KindSnapshot      = "snapshot"
	KindAck           = "ack"
	KindError         = "error"
	KindRequestStatus = "request_status"
	KindPong          = "pong"
)

// Message kinds. Client → server
const (
	KindGetSnapshot         = "get_snapshot"
	KindAcceptEvent         = "accept_event"
	KindRejectEvent         = "reject_event"
	KindAcceptAuthRequest   = "accept_auth_request"
	KindRejectAuthRequest   = "reject_auth_request"
	KindClubCreationRequest = "club_creation_request"
	KindAdminAccessRequest  = "admin_access_request"
	KindCheckRequestStatus  = "check_request_status"
	KindPing                = "ping"
)

// Request status values carried by request_status replies.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
	RequestUnknown  = "unknown"
)

// NewRequestID returns a fresh request identifier.
func NewRequestID() string {
	return uuid.NewString()
}

// Snapshot is the full admin state pushed by the server.
type Snapshot struct {
	Kind             string        `json:"kind"`
	Events           []Event       `json:"events"`
	AuthRequests     []AuthRequest `json:"authRequests"`
	RegisteredClubs  []Club        `json:"registeredClubs"`
	RegisteredAdmins []Admin       `json:"registeredAdmins"`
	ClubUsers        []ClubUser    `json:"clubUsers,omitempty"`
}

// SnapshotRequest asks the server to push a snapshot.
type SnapshotRequest struct {
	Kind      string `json:"kind"`
	RequestID string `json:"requestId"`
}

// EventDecision accepts or rejects a rolled event.
type EventDecision struct {
	Kind      string `json:"kind"`
	RequestID string `json:"requestId"`
	EventID   int    `json:"eventId"`
	Reason    string `json:"reason,omitempty"`
}

// AuthDecision accepts or rejects a club-creation or admin-access request.
type AuthDecision struct {
	Kind          string `json:"kind"`
	RequestID     string `json:"requestId"`
	AuthRequestID int    `json:"authRequestId"`
}

// ClubCreationRequest asks for a new club network.
type ClubCreationRequest struct {
	Kind        string `json:"kind"`
	RequestID   string `json:"requestId"`
	Name        string `json:"name"`
	RollNo      string `json:"rollNo"`
	ClubName    string `json:"clubName"`
	Description string `json:"description,omitempty"`
}

// AdminAccessRequest asks for admin page access for a club.
type AdminAccessRequest struct {
	Kind      string `json:"kind"`
	RequestID string `json:"requestId"`
	Name      string `json:"name"`
	RollNo    string `json:"rollNo"`
	ClubName  string `json:"clubName"`
}

// StatusCheck asks for the status of an earlier request.
type StatusCheck struct {
	Kind            string `json:"kind"`
	RequestID       string `json:"requestId"`
	TargetRequestID string `json:"targetRequestId"`
}

// RequestStatus answers a StatusCheck.
type RequestStatus struct {
	Kind            string `json:"kind"`
	RequestID       string `json:"requestId"`
	TargetRequestID string `json:"targetRequestId"`
	Status          string `json:"status"`
}

// Reply is an ack or error answering a request.
type Reply struct {
	Kind      string `json:"kind"` // "ack" or "error"
	RequestID string `json:"requestId"`
	Message   string `json:"message,omitempty"`
}

// NewEventDecision builds an accept_event or reject_event request.
func NewEventDecision(accept bool, eventID int, reason string) EventDecision {
	kind := KindRejectEvent
	if accept {
		kind = KindAcceptEvent
		reason = ""
	}
	return EventDecision{
		Kind:      kind,
		RequestID: NewRequestID(),
		EventID:   eventID,
		Reason:    reason,
	}
}

// NewAuthDecision builds an accept_auth_request or reject_auth_request request.
func NewAuthDecision(accept bool, authRequestID int) AuthDecision {
	kind := KindRejectAuthRequest
	if accept {
		kind = KindAcceptAuthRequest
	}
	return AuthDecision{
		Kind:          kind,
		RequestID:     NewRequestID(),
		AuthRequestID: authRequestID,
	}
}

// Encode converts a payload struct into a JSON object map.
func Encode(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("payload is not an object: %w", err)
	}
	if _, ok := m["kind"].(string); !ok {
		return nil, fmt.Errorf("payload has no kind")
	}
	return m, nil
}

// Decode converts a JSON object map into a payload struct.
func Decode(m map[string]any, v any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %v: %w", m["kind"], err)
	}
	return nil
}
