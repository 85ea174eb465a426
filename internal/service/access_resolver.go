package service

import (
	"crypto/subtle"

	"github.com/coder/quartz"

	"walldraft/internal/domain"
)

// AccessResolver computes a requester's permission on a draft. It holds no state
// besides the clock, so every call reflects the share state it is given.
type AccessResolver struct {
	clock quartz.Clock
}

func NewAccessResolver(clock quartz.Clock) *AccessResolver {
	return &AccessResolver{clock: clock}
}

// Resolve evaluates the grant rules in order and returns the first match:
// owner, direct share, live public link, otherwise none.
func (r *AccessResolver) Resolve(draft *domain.Draft, requester domain.Requester) domain.Access {
	if draft == nil {
		return domain.Access{Level: domain.LevelNone, Reason: domain.ReasonNoAccess}
	}

	if !requester.IsAnonymous() {
		if requester.UserID == draft.UserID {
			return domain.Access{Level: domain.LevelOwner, Reason: domain.ReasonOwner}
		}
		if draft.IsSharedWith(requester.UserID) {
			return domain.Access{Level: domain.LevelEditor, Reason: domain.ReasonSharedWith}
		}
	}

	if requester.Token != "" && r.linkAccepts(draft, requester.Token) {
		level := domain.LevelViewer
		if draft.LinkPermission == domain.LinkPermissionEdit {
			level = domain.LevelEditor
		}
		return domain.Access{Level: level, Reason: domain.ReasonShareLink}
	}

	return domain.Access{Level: domain.LevelNone, Reason: domain.ReasonNoAccess}
}

// linkAccepts does not report which condition failed.
func (r *AccessResolver) linkAccepts(draft *domain.Draft, token string) bool {
	if !draft.IsPublic || draft.ShareToken == nil {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(*draft.ShareToken), []byte(token)) != 1 {
		return false
	}
	if draft.ShareTokenExpires != nil && !r.clock.Now().Before(*draft.ShareTokenExpires) {
		return false
	}
	return true
}

// Require resolves access and checks it against min. A requester with no access gets
// ErrDraftNotFound so the response does not reveal that the draft exists; a requester
// who can see the draft but lacks min gets ErrForbidden.
func (r *AccessResolver) Require(draft *domain.Draft, requester domain.Requester, min domain.PermissionLevel) (domain.Access, error) {
	access := r.Resolve(draft, requester)
	if access.Level == domain.LevelNone {
		return access, domain.ErrDraftNotFound
	}
	if !access.Level.AtLeast(min) {
		return access, domain.ErrForbidden
	}
	return access, nil
}
