package models

import "time"

// RelationshipKind 定义关系边的类型。
type RelationshipKind string

const (
	RelationshipOutgoing RelationshipKind = "outgoing_request"
	RelationshipIncoming RelationshipKind = "incoming_request"
	RelationshipFriends  RelationshipKind = "friends"
	RelationshipBlocked  RelationshipKind = "blocked"
)

// RelationshipEdge is one user's directional record of their relationship
// to another user. A pending friend request is two rows (outgoing on the
// requester, incoming on the target); a block is a single row held by the
// blocker only. At most one row exists per ordered (owner, other) pair.
//
// The table deliberately does not use BaseModel: soft deletes would leave
// tombstones that collide with the unique pair index on re-add.
type RelationshipEdge struct {
	ID        uint             `gorm:"primarykey" json:"id"`
	OwnerID   uint             `gorm:"not null;uniqueIndex:idx_relationship_pair" json:"ownerId"`
	OtherID   uint             `gorm:"not null;index;uniqueIndex:idx_relationship_pair" json:"otherId"`
	Kind      RelationshipKind `gorm:"type:varchar(20);not null" json:"kind"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time        `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定 RelationshipEdge 模型的表名。
func (RelationshipEdge) TableName() string {
	return "relationship_edges"
}
