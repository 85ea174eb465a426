package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"walldraft/internal/domain"
)

// Broadcaster fans a wall snapshot out to the live sessions of a draft.
type Broadcaster interface {
	Broadcast(draftID string, wallData json.RawMessage) int
}

type draftService struct {
	drafts      domain.DraftRepository
	images      domain.ImageRepository
	quota       domain.QuotaService
	resolver    *AccessResolver
	storage     domain.StorageService
	broadcaster Broadcaster
	clock       quartz.Clock
	logger      domain.Logger
}

func NewDraftService(
	drafts domain.DraftRepository,
	images domain.ImageRepository,
	quota domain.QuotaService,
	resolver *AccessResolver,
	storage domain.StorageService,
	broadcaster Broadcaster,
	clock quartz.Clock,
	logger domain.Logger,
) *draftService {
	return &draftService{
		drafts:      drafts,
		images:      images,
		quota:       quota,
		resolver:    resolver,
		storage:     storage,
		broadcaster: broadcaster,
		clock:       clock,
		logger:      logger,
	}
}

// CreateDraft saves a new draft after checking the owner's draft quota against a
// fresh count.
func (s *draftService) CreateDraft(ctx context.Context, userID string, input domain.DraftInput) (*domain.Draft, error) {
	if userID == "" {
		return nil, domain.ErrForbidden
	}
	input.Name = strings.TrimSpace(input.Name)
	if err := validateStruct(input); err != nil {
		return nil, err
	}
	wallData, err := normalizeWallData(input.WallData)
	if err != nil {
		return nil, err
	}

	if _, err := s.quota.Enforce(ctx, userID, domain.ResourceDraft, domain.QuotaContext{}); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	draft := &domain.Draft{
		ID:             uuid.NewString(),
		UserID:         userID,
		Name:           input.Name,
		WallData:       wallData,
		PreviewURL:     input.PreviewURL,
		LinkPermission: domain.LinkPermissionView,
		SharedWith:     []string{},
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.drafts.Create(ctx, draft); err != nil {
		return nil, err
	}

	s.logger.Info("Draft created", "draft_id", draft.ID, "user_id", userID)
	return draft.RedactedFor(domain.LevelOwner), nil
}

func (s *draftService) GetDraft(ctx context.Context, draftID string, requester domain.Requester) (*domain.DraftView, error) {
	draft, err := s.drafts.GetByID(ctx, draftID)
	if err != nil {
		return nil, err
	}
	access, err := s.resolver.Require(draft, requester, domain.LevelViewer)
	if err != nil {
		return nil, err
	}
	return &domain.DraftView{Draft: draft.RedactedFor(access.Level), Access: access}, nil
}

func (s *draftService) ListOwnDrafts(ctx context.Context, userID string) ([]*domain.Draft, error) {
	drafts, err := s.drafts.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	return redactAll(drafts, domain.LevelOwner), nil
}

func (s *draftService) ListSharedDrafts(ctx context.Context, userID string) ([]*domain.Draft, error) {
	drafts, err := s.drafts.ListSharedWith(ctx, userID)
	if err != nil {
		return nil, err
	}
	return redactAll(drafts, domain.LevelEditor), nil
}

// UpdateDraft applies a content edit. Editors may change wall data and the preview;
// renaming is reserved to the owner. Wall changes are pushed to live sessions.
func (s *draftService) UpdateDraft(ctx context.Context, draftID string, requester domain.Requester, update domain.DraftUpdate) (*domain.Draft, error) {
	if err := validateStruct(update); err != nil {
		return nil, err
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, &domain.ValidationError{Field: "name", Message: "must not be empty"}
		}
		update.Name = &name
	}
	if strings.TrimSpace(string(update.WallData)) == "null" {
		update.WallData = nil
	}
	if update.WallData != nil {
		wallData, err := normalizeWallData(update.WallData)
		if err != nil {
			return nil, err
		}
		update.WallData = wallData
	}

	draft, err := s.drafts.GetByID(ctx, draftID)
	if err != nil {
		return nil, err
	}
	access, err := s.resolver.Require(draft, requester, domain.LevelEditor)
	if err != nil {
		return nil, err
	}
	if update.Name != nil && access.Level != domain.LevelOwner {
		return nil, domain.ErrForbidden
	}

	updated, err := s.drafts.UpdateContent(ctx, draftID, update)
	if err != nil {
		return nil, err
	}

	if update.WallData != nil && s.broadcaster != nil {
		s.broadcaster.Broadcast(draftID, updated.WallData)
	}
	s.logger.Debug("Draft updated", "draft_id", draftID, "level", access.Level, "reason", access.Reason)
	return updated.RedactedFor(access.Level), nil
}

// ApplyLiveUpdate persists a wall snapshot received on a live session. Access is
// resolved again for every update so a revoked link stops writing immediately.
// Fan-out is left to the caller's session, which should relay the returned
// snapshot as stored.
func (s *draftService) ApplyLiveUpdate(ctx context.Context, draftID string, requester domain.Requester, wallData json.RawMessage) (json.RawMessage, error) {
	normalized, err := normalizeWallData(wallData)
	if err != nil {
		return nil, err
	}

	draft, err := s.drafts.GetByID(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.Require(draft, requester, domain.LevelEditor); err != nil {
		return nil, err
	}

	if _, err := s.drafts.UpdateContent(ctx, draftID, domain.DraftUpdate{WallData: normalized}); err != nil {
		return nil, err
	}
	return normalized, nil
}

func (s *draftService) DeleteDraft(ctx context.Context, draftID string, userID string) error {
	draft, err := s.drafts.GetByID(ctx, draftID)
	if err != nil {
		return err
	}
	if _, err := s.resolver.Require(draft, domain.Requester{UserID: userID}, domain.LevelOwner); err != nil {
		return err
	}

	if err := s.drafts.Delete(ctx, draftID); err != nil {
		return err
	}
	if err := s.images.DeleteByDraft(ctx, draftID); err != nil {
		s.logger.Error("Failed to clear image ledger", err, "draft_id", draftID)
	}

	s.logger.Info("Draft deleted", "draft_id", draftID, "user_id", userID)
	return nil
}

// ResolveAccess loads the draft and resolves the requester against it. A level of
// none is returned without error; callers decide how to surface it.
func (s *draftService) ResolveAccess(ctx context.Context, draftID string, requester domain.Requester) (*domain.Draft, domain.Access, error) {
	draft, err := s.drafts.GetByID(ctx, draftID)
	if err != nil {
		return nil, domain.Access{Level: domain.LevelNone, Reason: domain.ReasonNoAccess}, err
	}
	return draft, s.resolver.Resolve(draft, requester), nil
}

// UploadImage stores an image for a draft the requester may edit, counted against the
// requester's per-draft upload quota.
func (s *draftService) UploadImage(ctx context.Context, draftID string, requester domain.Requester, filename string, contentType string, file io.Reader) (*domain.DraftImage, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return nil, &domain.ValidationError{Field: "file", Message: "must be an image"}
	}

	draft, err := s.drafts.GetByID(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.Require(draft, requester, domain.LevelEditor); err != nil {
		return nil, err
	}
	if _, err := s.quota.Enforce(ctx, requester.UserID, domain.ResourceImageUpload, domain.QuotaContext{DraftID: draftID}); err != nil {
		return nil, err
	}

	imageID := uuid.NewString()
	objectPath := draftID + "/" + imageID + strings.ToLower(path.Ext(filename))
	url, err := s.storage.Upload(ctx, objectPath, contentType, file)
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}

	image := &domain.DraftImage{
		ID:        imageID,
		DraftID:   draftID,
		URL:       url,
		CreatedAt: s.clock.Now().UTC(),
	}
	if !requester.IsAnonymous() {
		uploader := requester.UserID
		image.UploaderID = &uploader
	}
	if err := s.images.Create(ctx, image); err != nil {
		return nil, err
	}

	s.logger.Info("Draft image uploaded", "draft_id", draftID, "image_id", imageID, "anonymous", requester.IsAnonymous())
	return image, nil
}

// Status is the caller's draft quota snapshot.
func (s *draftService) Status(ctx context.Context, userID string) (*domain.DraftStatus, error) {
	var (
		decision  *domain.QuotaDecision
		canExport bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		decision, err = s.quota.CanCreate(gctx, userID, domain.ResourceDraft, domain.QuotaContext{})
		return err
	})
	g.Go(func() error {
		var err error
		canExport, err = s.quota.CanExport(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &domain.DraftStatus{
		CurrentDrafts: decision.Current,
		Limit:         decision.Limit,
		CanSaveMore:   decision.Allowed,
		Unlimited:     decision.Unlimited,
		PlanName:      decision.PlanName,
		CanExport:     canExport,
	}, nil
}

// ImageUploadStatus reports the requester's upload quota on a draft they can see.
func (s *draftService) ImageUploadStatus(ctx context.Context, draftID string, requester domain.Requester) (*domain.QuotaDecision, error) {
	draft, err := s.drafts.GetByID(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.Require(draft, requester, domain.LevelViewer); err != nil {
		return nil, err
	}
	return s.quota.CanCreate(ctx, requester.UserID, domain.ResourceImageUpload, domain.QuotaContext{DraftID: draftID})
}

func normalizeWallData(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, &domain.ValidationError{Field: "wallData", Message: "must be valid JSON"}
	}
	return json.RawMessage(trimmed), nil
}

func redactAll(drafts []*domain.Draft, level domain.PermissionLevel) []*domain.Draft {
	out := make([]*domain.Draft, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, d.RedactedFor(level))
	}
	return out
}
