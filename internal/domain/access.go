package domain

// PermissionLevel describes what an actor may do to a draft.
type PermissionLevel string

const (
	LevelNone   PermissionLevel = "none"
	LevelViewer PermissionLevel = "viewer"
	LevelEditor PermissionLevel = "editor"
	LevelOwner  PermissionLevel = "owner"
)

func (l PermissionLevel) rank() int {
	switch l {
	case LevelOwner:
		return 3
	case LevelEditor:
		return 2
	case LevelViewer:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether l grants everything min grants.
func (l PermissionLevel) AtLeast(min PermissionLevel) bool {
	return l.rank() >= min.rank()
}

// CanEdit reports whether the level may change wall data.
func (l PermissionLevel) CanEdit() bool {
	return l.AtLeast(LevelEditor)
}

// Reasons attached to an Access decision.
const (
	ReasonOwner      = "owner"
	ReasonSharedWith = "shared_with"
	ReasonShareLink  = "share_link"
	ReasonNoAccess   = "no_access"
)

// Requester identifies who is asking for a draft: an authenticated user, a share-link
// token, or both when a signed-in user follows a public link.
type Requester struct {
	UserID string
	Token  string
}

// IsAnonymous reports whether the requester has no authenticated identity.
func (r Requester) IsAnonymous() bool {
	return r.UserID == ""
}

// Access is the outcome of resolving a requester against a draft.
type Access struct {
	Level  PermissionLevel `json:"level"`
	Reason string          `json:"reason"`
}
