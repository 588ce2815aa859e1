package graphstore

import (
	"time"

	"github.com/google/uuid"
)

// GraphEntity is a named concept extracted from ingested documents.
// Names are normalized to lowercase and unique per user.
type GraphEntity struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	UserID    uuid.UUID `gorm:"type:uuid;index:idx_graph_entities_user_name,unique"`
	Name      string    `gorm:"type:varchar(255);index:idx_graph_entities_user_name,unique"`
	Type      string    `gorm:"type:varchar(64)"` // person, organization, concept, ...
	CreatedAt time.Time
}

func (GraphEntity) TableName() string {
	return "graph_entities"
}

// GraphMention links an entity to a chunk that mentions it. Source and
// a content snippet are denormalized here so enrichment can build
// passages without joining back into the document tables.
type GraphMention struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	EntityID uuid.UUID `gorm:"type:uuid;index"`
	ChunkID  uuid.UUID `gorm:"type:uuid;index"`
	Source   string    `gorm:"type:varchar(512)"`
	Snippet  string    `gorm:"type:text"`
	ChunkIdx int

	Entity *GraphEntity `gorm:"foreignKey:EntityID"`
}

func (GraphMention) TableName() string {
	return "graph_mentions"
}

// GraphRelation is a directed, labeled edge between two entities
type GraphRelation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	UserID    uuid.UUID `gorm:"type:uuid;index"`
	SourceID  uuid.UUID `gorm:"type:uuid;index"`
	TargetID  uuid.UUID `gorm:"type:uuid;index"`
	Relation  string    `gorm:"type:varchar(128)"`
	CreatedAt time.Time

	Source *GraphEntity `gorm:"foreignKey:SourceID"`
	Target *GraphEntity `gorm:"foreignKey:TargetID"`
}

func (GraphRelation) TableName() string {
	return "graph_relations"
}
