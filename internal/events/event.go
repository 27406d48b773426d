package events

import (
	"time"

	"github.com/google/uuid"

	"relations-go/internal/models"
)

// Event names delivered to client sessions.
const (
	RelationshipAdd    = "RELATIONSHIP_ADD"
	RelationshipRemove = "RELATIONSHIP_REMOVE"
)

// RelationshipEventPayload describes the recipient's own resulting (or
// removed) edge — never the counterpart's. ShouldNotify marks events the
// client should surface actively, e.g. an incoming friend request.
type RelationshipEventPayload struct {
	ID           string                  `json:"id"`
	UserID       uint                    `json:"userId"` // recipient
	OtherID      uint                    `json:"otherId"`
	Kind         models.RelationshipKind `json:"type"`
	ShouldNotify bool                    `json:"shouldNotify,omitempty"`
	Timestamp    time.Time               `json:"timestamp"`
}

// NewRelationshipEventPayload builds a payload for the given recipient edge.
func NewRelationshipEventPayload(userID, otherID uint, kind models.RelationshipKind, shouldNotify bool) RelationshipEventPayload {
	return RelationshipEventPayload{
		ID:           uuid.NewString(),
		UserID:       userID,
		OtherID:      otherID,
		Kind:         kind,
		ShouldNotify: shouldNotify,
		Timestamp:    time.Now(),
	}
}
