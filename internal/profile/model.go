package profile

import "mentor-chat/internal/chat"

// Record is one row of the platform's user directory.
type Record struct {
	Identity   string    `json:"identity" bson:"identity"`
	Role       chat.Role `json:"role" bson:"role"`
	Name       string    `json:"name" bson:"name"`
	Department string    `json:"department" bson:"department"`
}

func (r Record) Profile() *chat.Profile {
	return &chat.Profile{Name: r.Name, Department: r.Department}
}

// SearchResult is what the search endpoint returns per match.
type SearchResult struct {
	Participant chat.Participant `json:"participant"`
	Name        string           `json:"name"`
	Department  string           `json:"department"`
}
