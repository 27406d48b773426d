package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"relations-go/internal/models"
)

// RelationshipRepository defines the interface for relationship edge
// operations. All operations are keyed by the ordered (owner, other) pair;
// the composite unique index makes per-pair writes last-writer-wins. No
// cross-pair atomicity is offered — the engine composes single-pair calls.
type RelationshipRepository interface {
	FindEdge(ctx context.Context, ownerID, otherID uint) (*models.RelationshipEdge, error)
	ListEdges(ctx context.Context, ownerID uint) ([]models.RelationshipEdge, error)
	Upsert(ctx context.Context, edge *models.RelationshipEdge) error
	Delete(ctx context.Context, ownerID, otherID uint) error
	CountByKind(ctx context.Context, ownerID uint, kind models.RelationshipKind) (int64, error)
}

type gormRelationshipRepository struct {
	db *gorm.DB
}

// NewGormRelationshipRepository creates a new GORM-based RelationshipRepository.
func NewGormRelationshipRepository(db *gorm.DB) RelationshipRepository {
	return &gormRelationshipRepository{db: db}
}

// FindEdge retrieves the edge owned by ownerID toward otherID.
// Returns (nil, nil) when no edge exists.
func (r *gormRelationshipRepository) FindEdge(ctx context.Context, ownerID, otherID uint) (*models.RelationshipEdge, error) {
	var edge models.RelationshipEdge
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND other_id = ?", ownerID, otherID).
		First(&edge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &edge, nil
}

// ListEdges retrieves all edges owned by ownerID.
func (r *gormRelationshipRepository) ListEdges(ctx context.Context, ownerID uint) ([]models.RelationshipEdge, error) {
	var edges []models.RelationshipEdge
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Find(&edges).Error
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// Upsert inserts the edge or, if the pair already has a row, updates its
// kind in place. The conflict target is the unique pair index, so two
// concurrent upserts on the same pair serialize in the database.
func (r *gormRelationshipRepository) Upsert(ctx context.Context, edge *models.RelationshipEdge) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}, {Name: "other_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"kind", "updated_at"}),
		}).
		Create(edge).Error
}

// Delete removes the edge for the ordered pair. Deleting a missing edge is
// not an error; the engine has already decided the transition.
func (r *gormRelationshipRepository) Delete(ctx context.Context, ownerID, otherID uint) error {
	return r.db.WithContext(ctx).
		Where("owner_id = ? AND other_id = ?", ownerID, otherID).
		Delete(&models.RelationshipEdge{}).Error
}

// CountByKind counts the edges of the given kind owned by ownerID.
// Used for the friend-limit check.
func (r *gormRelationshipRepository) CountByKind(ctx context.Context, ownerID uint, kind models.RelationshipKind) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RelationshipEdge{}).
		Where("owner_id = ? AND kind = ?", ownerID, kind).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
