package model

import "encoding/json"

// -----------------------------------------------------------------------------
// Records
// -----------------------------------------------------------------------------

// Event status values.
const (
	EventPending  = "PENDING"
	EventApproved = "APPROVED"
	EventRejected = "REJECTED"
)

// Event is a club event submitted for admin review ("rolled event").
type Event struct {
	ID     int    `json:"id"`
	Club   string `json:"club"`
	Event  string `json:"event"` // Event name
	Date   string `json:"date"`
	Time   string `json:"time"`
	Venue  string `json:"venue"`
	Desc   string `json:"desc"`
	Status string `json:"status,omitempty"` // PENDING, APPROVED or REJECTED; empty means pending

	// Extra holds fields Event does not declare, such as a poster URL.
	// They are written back unchanged.
	Extra map[string]json.RawMessage `json:"-"`
}

// Auth request types.
const (
	AuthRequestClub  = "club"  // Request to create a club network
	AuthRequestAdmin = "admin" // Request for admin page access
)

// AuthRequest is a pending club-creation or admin-access request.
type AuthRequest struct {
	ID        int    `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	RollNo    string `json:"rollNo"`
	ClubName  string `json:"clubName,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Club is a registered club.
type Club struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// Admin is a registered admin.
type Admin struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	RollNo    string `json:"rollNo"`
	LastLogin string `json:"lastLogin"`
}

// ClubUser is a member shown on the club monitor.
type ClubUser struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	LastLogin string `json:"lastLogin"`
	Online    bool   `json:"online"`
}

// EventsFile is the persisted collection behind the create-event endpoint.
// The file may carry further sections; stores keep them as they are.
type EventsFile struct {
	RolledEvents     []Event       `json:"rolledEvents"`
	AuthRequests     []AuthRequest `json:"authRequests"`
	RegisteredClubs  []Club        `json:"registeredClubs"`
	RegisteredAdmins []Admin       `json:"registeredAdmins"`
	ClubUsers        []ClubUser    `json:"clubUsers,omitempty"`
}

// OnlineCount returns how many club users are online.
func (f *EventsFile) OnlineCount() int {
	n := 0
	for _, u := range f.ClubUsers {
		if u.Online {
			n++
		}
	}
	return n
}
