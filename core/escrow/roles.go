package escrow

// Role is a user's platform role. Capabilities are derived from the role at
// check time and never persisted.
type Role string

const (
	RoleCandidate Role = "candidate"
	RoleRecruiter Role = "recruiter"
	RoleReviewer  Role = "reviewer"
	RoleAdmin     Role = "admin"
)

// User is a platform participant.
type User struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	Role   Role   `json:"role"`
}

// Capabilities is the set of actions a role permits.
type Capabilities struct {
	SubmitWork        bool `json:"submit_work"`
	PostAssignments   bool `json:"post_assignments"`
	ReviewSubmissions bool `json:"review_submissions"`
	Operate           bool `json:"operate"`
}

// CapabilitiesFor derives the capability set for a role. Unknown roles get no
// capabilities.
func CapabilitiesFor(r Role) Capabilities {
	switch r {
	case RoleCandidate:
		return Capabilities{SubmitWork: true}
	case RoleRecruiter:
		return Capabilities{PostAssignments: true}
	case RoleReviewer:
		return Capabilities{SubmitWork: true, ReviewSubmissions: true}
	case RoleAdmin:
		return Capabilities{SubmitWork: true, PostAssignments: true, ReviewSubmissions: true, Operate: true}
	default:
		return Capabilities{}
	}
}
