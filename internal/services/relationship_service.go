package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"relations-go/internal/apperrors"
	"relations-go/internal/config"
	"relations-go/internal/events"
	"relations-go/internal/models"
	"relations-go/internal/storage"
)

// discriminatorWidth is the fixed width handles are zero-padded to before
// directory lookup.
const discriminatorWidth = 4

// RelationshipEntry is one row of a user's relationship listing.
type RelationshipEntry struct {
	OtherID uint                    `json:"otherId"`
	Kind    models.RelationshipKind `json:"kind"`
	Since   time.Time               `json:"since"`
}

// RelationshipService is the relationship state machine. It validates
// requested transitions against the current edges of the ordered pair,
// writes both sides, and notifies each affected user.
//
// The two writes of a paired transition are not transactional: a crash or
// conflicting writer between them can leave a half-applied pair. This is
// inherited from the store's per-pair-only guarantees.
type RelationshipService interface {
	ListRelationships(ctx context.Context, ownerID uint) ([]RelationshipEntry, error)
	RequestOrAccept(ctx context.Context, ownerID, targetID uint) error
	RequestOrAcceptByHandle(ctx context.Context, ownerID uint, username, discriminator string) error
	Block(ctx context.Context, ownerID, targetID uint) error
	Remove(ctx context.Context, ownerID, targetID uint) error
}

type relationshipService struct {
	userRepo  storage.UserRepository
	relRepo   storage.RelationshipRepository
	publisher events.Publisher
	cfg       config.RelationshipsConfig
}

// NewRelationshipService creates a new RelationshipService instance.
func NewRelationshipService(
	userRepo storage.UserRepository,
	relRepo storage.RelationshipRepository,
	publisher events.Publisher,
	cfg config.RelationshipsConfig,
) RelationshipService {
	return &relationshipService{
		userRepo:  userRepo,
		relRepo:   relRepo,
		publisher: publisher,
		cfg:       cfg,
	}
}

// ListRelationships returns every edge owned by ownerID.
func (s *relationshipService) ListRelationships(ctx context.Context, ownerID uint) ([]RelationshipEntry, error) {
	edges, err := s.relRepo.ListEdges(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("列出用户 %d 的关系失败: %w", ownerID, err)
	}
	entries := make([]RelationshipEntry, 0, len(edges))
	for _, edge := range edges {
		entries = append(entries, RelationshipEntry{
			OtherID: edge.OtherID,
			Kind:    edge.Kind,
			Since:   edge.CreatedAt,
		})
	}
	return entries, nil
}

// requestTransition computes the resulting kind pair for a RequestAdd
// intent given the target's current edge toward the initiator. It returns
// the new initiator and target kinds and whether this is the accept path.
// Edges are never reinterpreted in place as the other role; both sides get
// freshly computed kinds.
func requestTransition(targetEdge *models.RelationshipEdge) (initiatorKind, targetKind models.RelationshipKind, accepted bool) {
	if targetEdge != nil && targetEdge.Kind == models.RelationshipOutgoing {
		// Target already requested the initiator: mutual intent, both
		// sides become friends.
		return models.RelationshipFriends, models.RelationshipFriends, true
	}
	return models.RelationshipOutgoing, models.RelationshipIncoming, false
}

// RequestOrAccept issues a RequestAdd intent from ownerID toward targetID.
// If the target already holds an outgoing request toward the owner, the
// pair is accepted into friends; otherwise a pending request pair is
// created.
func (s *relationshipService) RequestOrAccept(ctx context.Context, ownerID, targetID uint) error {
	if ownerID == targetID {
		return &apperrors.ConflictError{Code: apperrors.CodeSelfAction}
	}

	if _, err := s.userRepo.GetByID(ctx, targetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &apperrors.NotFoundError{Code: apperrors.CodeUnknownUser}
		}
		return fmt.Errorf("检查目标用户 %d 时出错: %w", targetID, err)
	}

	initiatorEdge, err := s.relRepo.FindEdge(ctx, ownerID, targetID)
	if err != nil {
		return fmt.Errorf("读取 %d→%d 关系边失败: %w", ownerID, targetID, err)
	}
	targetEdge, err := s.relRepo.FindEdge(ctx, targetID, ownerID)
	if err != nil {
		return fmt.Errorf("读取 %d→%d 关系边失败: %w", targetID, ownerID, err)
	}

	if targetEdge != nil && targetEdge.Kind == models.RelationshipBlocked {
		return &apperrors.ConflictError{Code: apperrors.CodeBlockedByTarget}
	}

	if initiatorEdge != nil {
		switch initiatorEdge.Kind {
		case models.RelationshipOutgoing:
			return &apperrors.ConflictError{Code: apperrors.CodeAlreadyRequested}
		case models.RelationshipFriends:
			return &apperrors.ConflictError{Code: apperrors.CodeAlreadyFriends}
		case models.RelationshipBlocked:
			return &apperrors.ConflictError{Code: apperrors.CodeUnblockRequired}
		case models.RelationshipIncoming:
			// The target requested us first; fall through to the accept path.
		}
	}

	// Friend cap is enforced before any write, on both the initial-request
	// and the accept path, against the initiator's current friend count.
	friendCount, err := s.relRepo.CountByKind(ctx, ownerID, models.RelationshipFriends)
	if err != nil {
		return fmt.Errorf("统计用户 %d 的好友数失败: %w", ownerID, err)
	}
	if s.cfg.MaxFriends > 0 && friendCount >= int64(s.cfg.MaxFriends) {
		return &apperrors.LimitExceeded{Code: apperrors.CodeFriendLimitReached, Limit: s.cfg.MaxFriends}
	}

	initiatorKind, targetKind, accepted := requestTransition(targetEdge)

	// Two single-pair writes; no cross-pair transaction (see interface doc).
	if err := s.relRepo.Upsert(ctx, &models.RelationshipEdge{
		OwnerID: ownerID,
		OtherID: targetID,
		Kind:    initiatorKind,
	}); err != nil {
		return fmt.Errorf("写入 %d→%d 关系边失败: %w", ownerID, targetID, err)
	}
	if err := s.relRepo.Upsert(ctx, &models.RelationshipEdge{
		OwnerID: targetID,
		OtherID: ownerID,
		Kind:    targetKind,
	}); err != nil {
		return fmt.Errorf("写入 %d→%d 关系边失败: %w", targetID, ownerID, err)
	}

	// One event per affected user, each describing that user's own edge.
	// The acting user is never flagged for notification.
	s.emit(ctx, ownerID, events.RelationshipAdd,
		events.NewRelationshipEventPayload(ownerID, targetID, initiatorKind, false))
	s.emit(ctx, targetID, events.RelationshipAdd,
		events.NewRelationshipEventPayload(targetID, ownerID, targetKind, true))

	if accepted {
		log.Printf("Relationship accepted: users %d and %d are now friends", ownerID, targetID)
	}
	return nil
}

// RequestOrAcceptByHandle resolves username#discriminator and issues the
// RequestAdd intent. The discriminator is zero-padded to four digits
// before lookup.
func (s *relationshipService) RequestOrAcceptByHandle(ctx context.Context, ownerID uint, username, discriminator string) error {
	target, err := s.userRepo.GetByHandle(ctx, username, padDiscriminator(discriminator))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &apperrors.NotFoundError{Code: apperrors.CodeUnknownUser}
		}
		return fmt.Errorf("按用户名查找 %s#%s 失败: %w", username, discriminator, err)
	}
	return s.RequestOrAccept(ctx, ownerID, target.ID)
}

// Block issues a Block intent. Blocking is unilateral: it always succeeds
// for the blocker regardless of the prior state, except re-blocking. Any
// non-blocked edge the target held toward the blocker is pruned, and the
// target is never told who blocked them — they only see their own edge
// disappear.
func (s *relationshipService) Block(ctx context.Context, ownerID, targetID uint) error {
	if ownerID == targetID {
		return &apperrors.ConflictError{Code: apperrors.CodeSelfAction}
	}

	if _, err := s.userRepo.GetByID(ctx, targetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &apperrors.NotFoundError{Code: apperrors.CodeUnknownUser}
		}
		return fmt.Errorf("检查目标用户 %d 时出错: %w", targetID, err)
	}

	initiatorEdge, err := s.relRepo.FindEdge(ctx, ownerID, targetID)
	if err != nil {
		return fmt.Errorf("读取 %d→%d 关系边失败: %w", ownerID, targetID, err)
	}
	if initiatorEdge != nil && initiatorEdge.Kind == models.RelationshipBlocked {
		return &apperrors.ConflictError{Code: apperrors.CodeAlreadyBlocked}
	}
	targetEdge, err := s.relRepo.FindEdge(ctx, targetID, ownerID)
	if err != nil {
		return fmt.Errorf("读取 %d→%d 关系边失败: %w", targetID, ownerID, err)
	}

	if err := s.relRepo.Upsert(ctx, &models.RelationshipEdge{
		OwnerID: ownerID,
		OtherID: targetID,
		Kind:    models.RelationshipBlocked,
	}); err != nil {
		return fmt.Errorf("写入 %d→%d 拉黑边失败: %w", ownerID, targetID, err)
	}

	if targetEdge != nil && targetEdge.Kind != models.RelationshipBlocked {
		if err := s.relRepo.Delete(ctx, targetID, ownerID); err != nil {
			return fmt.Errorf("删除 %d→%d 关系边失败: %w", targetID, ownerID, err)
		}
		s.emit(ctx, targetID, events.RelationshipRemove,
			events.NewRelationshipEventPayload(targetID, ownerID, targetEdge.Kind, false))
	}

	s.emit(ctx, ownerID, events.RelationshipAdd,
		events.NewRelationshipEventPayload(ownerID, targetID, models.RelationshipBlocked, false))
	return nil
}

// Remove issues a Remove intent: unfriend, cancel or reject a request, or
// unblock, depending on the initiator's current edge.
func (s *relationshipService) Remove(ctx context.Context, ownerID, targetID uint) error {
	if ownerID == targetID {
		return &apperrors.ConflictError{Code: apperrors.CodeSelfAction}
	}

	initiatorEdge, err := s.relRepo.FindEdge(ctx, ownerID, targetID)
	if err != nil {
		return fmt.Errorf("读取 %d→%d 关系边失败: %w", ownerID, targetID, err)
	}
	if initiatorEdge == nil {
		return &apperrors.NotFoundError{Code: apperrors.CodeNotRelated}
	}

	if initiatorEdge.Kind == models.RelationshipBlocked {
		// Unblock: the blocked party held no reciprocal edge, so only the
		// initiator's edge goes away.
		if err := s.relRepo.Delete(ctx, ownerID, targetID); err != nil {
			return fmt.Errorf("删除 %d→%d 拉黑边失败: %w", ownerID, targetID, err)
		}
		s.emit(ctx, ownerID, events.RelationshipRemove,
			events.NewRelationshipEventPayload(ownerID, targetID, models.RelationshipBlocked, false))
		return nil
	}

	targetEdge, err := s.relRepo.FindEdge(ctx, targetID, ownerID)
	if err != nil {
		return fmt.Errorf("读取 %d→%d 关系边失败: %w", targetID, ownerID, err)
	}

	if err := s.relRepo.Delete(ctx, ownerID, targetID); err != nil {
		return fmt.Errorf("删除 %d→%d 关系边失败: %w", ownerID, targetID, err)
	}
	// A blocked edge on the target's side survives an unfriend: the block
	// belongs to them and is invisible to us.
	if targetEdge != nil && targetEdge.Kind != models.RelationshipBlocked {
		if err := s.relRepo.Delete(ctx, targetID, ownerID); err != nil {
			return fmt.Errorf("删除 %d→%d 关系边失败: %w", targetID, ownerID, err)
		}
		s.emit(ctx, targetID, events.RelationshipRemove,
			events.NewRelationshipEventPayload(targetID, ownerID, targetEdge.Kind, false))
	}

	s.emit(ctx, ownerID, events.RelationshipRemove,
		events.NewRelationshipEventPayload(ownerID, targetID, initiatorEdge.Kind, false))
	return nil
}

// emit publishes a relationship event to one user. Delivery is best-effort:
// failures are logged and never fail the triggering operation.
func (s *relationshipService) emit(ctx context.Context, userID uint, name string, payload events.RelationshipEventPayload) {
	if err := s.publisher.Publish(ctx, userID, name, payload); err != nil {
		log.Printf("Error publishing %s event to user %d: %v", name, userID, err)
	}
}

// padDiscriminator left-pads a discriminator with zeros to the fixed
// lookup width, e.g. "1" → "0001".
func padDiscriminator(d string) string {
	if len(d) >= discriminatorWidth {
		return d
	}
	return strings.Repeat("0", discriminatorWidth-len(d)) + d
}
