package domain

import (
	"context"
	"encoding/json"
	"io"
	"slices"
	"time"
)

// LinkPermission is the access level granted by a public share link.
type LinkPermission string

const (
	LinkPermissionView LinkPermission = "view"
	LinkPermissionEdit LinkPermission = "edit"
)

// Valid reports whether p is a known link permission.
func (p LinkPermission) Valid() bool {
	return p == LinkPermissionView || p == LinkPermissionEdit
}

// Draft is a saved wall design owned by a single user.
type Draft struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	Name       string          `json:"name"`
	WallData   json.RawMessage `json:"wallData"`
	PreviewURL string          `json:"previewUrl,omitempty"`

	IsPublic          bool           `json:"isPublic"`
	ShareToken        *string        `json:"shareToken,omitempty"`
	ShareTokenExpires *time.Time     `json:"shareTokenExpires,omitempty"`
	LinkPermission    LinkPermission `json:"linkPermission"`
	SharedWith        []string       `json:"sharedWith"`

	// Version increments on every write and backs compare-and-swap updates.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsSharedWith reports whether userID holds a direct grant.
func (d *Draft) IsSharedWith(userID string) bool {
	return userID != "" && slices.Contains(d.SharedWith, userID)
}

// ShareState returns the public-link fields as one value.
func (d *Draft) ShareState() ShareState {
	return ShareState{
		IsPublic:          d.IsPublic,
		ShareToken:        d.ShareToken,
		ShareTokenExpires: d.ShareTokenExpires,
		LinkPermission:    d.LinkPermission,
	}
}

// RedactedFor returns a copy safe to hand to a requester at the given level.
// Only owners see the share token and the grant list.
func (d *Draft) RedactedFor(level PermissionLevel) *Draft {
	out := *d
	if level != LevelOwner {
		out.ShareToken = nil
		out.ShareTokenExpires = nil
		out.SharedWith = nil
	}
	if out.SharedWith == nil && level == LevelOwner {
		out.SharedWith = []string{}
	}
	return &out
}

// ShareState groups the fields that must always be written together.
type ShareState struct {
	IsPublic          bool
	ShareToken        *string
	ShareTokenExpires *time.Time
	LinkPermission    LinkPermission
}

// DraftImage records one image uploaded into a draft.
type DraftImage struct {
	ID         string    `json:"id"`
	DraftID    string    `json:"draftId"`
	UploaderID *string   `json:"uploaderId,omitempty"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DraftInput is the payload for creating a draft.
type DraftInput struct {
	Name       string          `json:"name" validate:"required,max=200"`
	WallData   json.RawMessage `json:"wallData"`
	PreviewURL string          `json:"previewUrl" validate:"omitempty,url"`
}

// DraftUpdate carries optional changes to a draft's content.
type DraftUpdate struct {
	Name       *string         `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	WallData   json.RawMessage `json:"wallData,omitempty"`
	PreviewURL *string         `json:"previewUrl,omitempty" validate:"omitempty,url"`
}

// DraftView is a draft as seen by a particular requester.
type DraftView struct {
	Draft  *Draft `json:"draft"`
	Access Access `json:"access"`
}

// DraftStatus is the current user's draft quota snapshot.
type DraftStatus struct {
	CurrentDrafts int    `json:"currentDrafts"`
	Limit         int    `json:"limit"`
	CanSaveMore   bool   `json:"canSaveMore"`
	Unlimited     bool   `json:"unlimited"`
	PlanName      string `json:"planName"`
	CanExport     bool   `json:"canExport"`
}

// MaxShareLinkTTL is the longest expiry a public link may be issued with.
const MaxShareLinkTTL = 10 * 365 * 24 * time.Hour

// ShareLinkOptions configures IssueOrRotate.
type ShareLinkOptions struct {
	Permission LinkPermission
	TTL        *time.Duration
	Rotate     bool
}

// ShareLink is the result of issuing or rotating a public link.
type ShareLink struct {
	DraftID    string         `json:"draftId"`
	Token      string         `json:"token"`
	Permission LinkPermission `json:"linkPermission"`
	ExpiresAt  *time.Time     `json:"expiresAt,omitempty"`
	URL        string         `json:"url"`
}

// DraftRepository persists drafts. Every method that changes more than one field does so
// in a single atomic write.
type DraftRepository interface {
	Create(ctx context.Context, draft *Draft) error
	GetByID(ctx context.Context, id string) (*Draft, error)
	ListByOwner(ctx context.Context, userID string) ([]*Draft, error)
	ListSharedWith(ctx context.Context, userID string) ([]*Draft, error)
	CountByOwner(ctx context.Context, userID string) (int, error)
	UpdateContent(ctx context.Context, id string, update DraftUpdate) (*Draft, error)
	UpdateShareState(ctx context.Context, id string, state ShareState) error
	AddSharedUsers(ctx context.Context, id string, userIDs []string) (*Draft, error)
	RemoveSharedUser(ctx context.Context, id string, userID string) error
	Delete(ctx context.Context, id string) error
}

// ImageRepository persists the per-draft upload ledger.
type ImageRepository interface {
	Create(ctx context.Context, image *DraftImage) error
	CountByDraft(ctx context.Context, draftID string) (int, error)
	DeleteByDraft(ctx context.Context, draftID string) error
}

// DraftService defines the use-case operations for drafts.
type DraftService interface {
	CreateDraft(ctx context.Context, userID string, input DraftInput) (*Draft, error)
	GetDraft(ctx context.Context, draftID string, requester Requester) (*DraftView, error)
	ListOwnDrafts(ctx context.Context, userID string) ([]*Draft, error)
	ListSharedDrafts(ctx context.Context, userID string) ([]*Draft, error)
	UpdateDraft(ctx context.Context, draftID string, requester Requester, update DraftUpdate) (*Draft, error)
	ApplyLiveUpdate(ctx context.Context, draftID string, requester Requester, wallData json.RawMessage) (json.RawMessage, error)
	DeleteDraft(ctx context.Context, draftID string, userID string) error
	ResolveAccess(ctx context.Context, draftID string, requester Requester) (*Draft, Access, error)
	UploadImage(ctx context.Context, draftID string, requester Requester, filename string, contentType string, file io.Reader) (*DraftImage, error)
	Status(ctx context.Context, userID string) (*DraftStatus, error)
	ImageUploadStatus(ctx context.Context, draftID string, requester Requester) (*QuotaDecision, error)
}

// ShareService defines public-link and direct-grant operations.
type ShareService interface {
	IssueOrRotate(ctx context.Context, draftID string, ownerID string, opts ShareLinkOptions) (*ShareLink, error)
	Revoke(ctx context.Context, draftID string, ownerID string) error
	ShareWithUsers(ctx context.Context, draftID string, ownerID string, userIDs []string) (*Draft, error)
	RemoveShare(ctx context.Context, draftID string, actorID string, userID string) error
}

