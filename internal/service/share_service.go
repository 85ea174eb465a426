package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/coder/quartz"

	"walldraft/internal/domain"
	"walldraft/internal/metrics"
)

const shareTokenBytes = 32

type shareService struct {
	drafts        domain.DraftRepository
	users         domain.UserRepository
	resolver      *AccessResolver
	clock         quartz.Clock
	publicBaseURL string
	metrics       *metrics.Metrics
	logger        domain.Logger
}

func NewShareService(
	drafts domain.DraftRepository,
	users domain.UserRepository,
	resolver *AccessResolver,
	clock quartz.Clock,
	publicBaseURL string,
	m *metrics.Metrics,
	logger domain.Logger,
) *shareService {
	return &shareService{
		drafts:        drafts,
		users:         users,
		resolver:      resolver,
		clock:         clock,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		metrics:       m,
		logger:        logger,
	}
}

// IssueOrRotate publishes the draft through a tokenized link. A live token is reused
// unless opts.Rotate is set, so changing only the permission keeps the link stable.
func (s *shareService) IssueOrRotate(ctx context.Context, draftID string, ownerID string, opts domain.ShareLinkOptions) (*domain.ShareLink, error) {
	if opts.Permission == "" {
		opts.Permission = domain.LinkPermissionView
	}
	if !opts.Permission.Valid() {
		return nil, &domain.ValidationError{Field: "linkPermission", Message: "must be view or edit"}
	}
	if opts.TTL != nil && *opts.TTL <= 0 {
		return nil, &domain.ValidationError{Field: "ttlSeconds", Message: "must be positive"}
	}
	if opts.TTL != nil && *opts.TTL > domain.MaxShareLinkTTL {
		return nil, &domain.ValidationError{Field: "ttlSeconds", Message: "must be at most ten years"}
	}

	draft, err := s.ownedDraft(ctx, draftID, ownerID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	op := "update"
	token := ""
	if !opts.Rotate && linkIsLive(draft, now) {
		token = *draft.ShareToken
	} else {
		token, err = newShareToken()
		if err != nil {
			return nil, err
		}
		op = "issue"
		if draft.ShareToken != nil {
			op = "rotate"
		}
	}

	state := domain.ShareState{
		IsPublic:       true,
		ShareToken:     &token,
		LinkPermission: opts.Permission,
	}
	if opts.TTL != nil {
		expires := now.Add(*opts.TTL).UTC()
		state.ShareTokenExpires = &expires
	}

	if err := s.drafts.UpdateShareState(ctx, draftID, state); err != nil {
		return nil, err
	}

	s.metrics.ShareOperation(op)
	s.logger.Info("Share link updated", "draft_id", draftID, "op", op, "permission", opts.Permission, "expires", state.ShareTokenExpires != nil)

	return &domain.ShareLink{
		DraftID:    draftID,
		Token:      token,
		Permission: opts.Permission,
		ExpiresAt:  state.ShareTokenExpires,
		URL:        s.ShareURL(draftID, token, opts.Permission),
	}, nil
}

// Revoke clears the public link. Revoking an unpublished draft succeeds.
func (s *shareService) Revoke(ctx context.Context, draftID string, ownerID string) error {
	draft, err := s.ownedDraft(ctx, draftID, ownerID)
	if err != nil {
		return err
	}

	permission := draft.LinkPermission
	if !permission.Valid() {
		permission = domain.LinkPermissionView
	}
	if err := s.drafts.UpdateShareState(ctx, draftID, domain.ShareState{LinkPermission: permission}); err != nil {
		return err
	}

	s.metrics.ShareOperation("revoke")
	s.logger.Info("Share link revoked", "draft_id", draftID, "was_public", draft.IsPublic)
	return nil
}

// ShareWithUsers grants editor access to each listed user. Unknown users fail the
// whole call before anything is written.
func (s *shareService) ShareWithUsers(ctx context.Context, draftID string, ownerID string, userIDs []string) (*domain.Draft, error) {
	draft, err := s.ownedDraft(ctx, draftID, ownerID)
	if err != nil {
		return nil, err
	}

	grantees := make([]string, 0, len(userIDs))
	seen := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id == "" || id == draft.UserID || seen[id] {
			continue
		}
		seen[id] = true
		grantees = append(grantees, id)
	}
	if len(grantees) == 0 {
		return nil, &domain.ValidationError{Field: "userIds", Message: "at least one user other than the owner is required"}
	}

	for _, id := range grantees {
		if _, err := s.users.GetByID(ctx, id); err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return nil, &domain.ValidationError{Field: "userIds", Message: fmt.Sprintf("unknown user %s", id)}
			}
			return nil, err
		}
	}

	updated, err := s.drafts.AddSharedUsers(ctx, draftID, grantees)
	if err != nil {
		return nil, err
	}

	s.metrics.ShareOperation("grant")
	s.logger.Info("Draft shared with users", "draft_id", draftID, "count", len(grantees))
	return updated.RedactedFor(domain.LevelOwner), nil
}

// RemoveShare drops userID from the draft's grants. The owner may remove anyone;
// a grantee may remove only themselves.
func (s *shareService) RemoveShare(ctx context.Context, draftID string, actorID string, userID string) error {
	draft, err := s.drafts.GetByID(ctx, draftID)
	if err != nil {
		return err
	}

	selfRemoval := actorID == userID && draft.IsSharedWith(actorID)
	if !selfRemoval {
		if _, err := s.resolver.Require(draft, domain.Requester{UserID: actorID}, domain.LevelOwner); err != nil {
			return err
		}
	}

	if err := s.drafts.RemoveSharedUser(ctx, draftID, userID); err != nil {
		return err
	}

	s.metrics.ShareOperation("ungrant")
	s.logger.Info("Draft grant removed", "draft_id", draftID, "user_id", userID, "self", selfRemoval)
	return nil
}

// ShareURL builds the public link. The same inputs always give the same URL.
func (s *shareService) ShareURL(draftID, token string, permission domain.LinkPermission) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("permission", string(permission))
	return s.publicBaseURL + "/drafts/" + url.PathEscape(draftID) + "?" + q.Encode()
}

func (s *shareService) ownedDraft(ctx context.Context, draftID, ownerID string) (*domain.Draft, error) {
	draft, err := s.drafts.GetByID(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.Require(draft, domain.Requester{UserID: ownerID}, domain.LevelOwner); err != nil {
		return nil, err
	}
	return draft, nil
}

func linkIsLive(draft *domain.Draft, now time.Time) bool {
	if !draft.IsPublic || draft.ShareToken == nil || *draft.ShareToken == "" {
		return false
	}
	return draft.ShareTokenExpires == nil || now.Before(*draft.ShareTokenExpires)
}

func newShareToken() (string, error) {
	b := make([]byte, shareTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
