package session

// Status is the session lifecycle state.
type Status int

const (
	StatusAnonymous Status = iota
	StatusAuthenticated
	// StatusRefreshing is transient: a token is held and is being renewed.
	StatusRefreshing
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusRefreshing:
		return "refreshing"
	default:
		return "anonymous"
	}
}

// State is a read-only view of the session for collaborators.
// The access token itself is never exposed, only its presence.
type State struct {
	Status   Status
	User     *User
	HasToken bool
	IsAdmin  bool
	Loading  bool
	Error    string
}

// Result is the outcome of Login. Expected failures such as a wrong password
// are reported here rather than as errors.
type Result struct {
	Success bool
	Message string
}
