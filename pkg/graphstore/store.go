package graphstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists the knowledge graph in Postgres alongside the vector
// tables, one transaction boundary for ingest and enrichment both.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// IndexChunk records the entities and relations extracted from one
// chunk. Entities are upserted by normalized name; mentions always
// insert so every chunk referencing an entity stays reachable.
func (s *Store) IndexChunk(
	ctx context.Context,
	userID, chunkID uuid.UUID,
	source, snippet string,
	chunkIdx int,
	entities []ExtractedEntity,
	relations []ExtractedRelation,
) error {
	if len(entities) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		byName := make(map[string]uuid.UUID, len(entities))

		for _, e := range entities {
			name := normalizeName(e.Name)
			if name == "" {
				continue
			}

			entity := GraphEntity{UserID: userID, Name: name, Type: e.Type}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"type"}),
			}).Create(&entity).Error
			if err != nil {
				return fmt.Errorf("failed to upsert entity %q: %w", name, err)
			}

			// conflict path returns the existing row's id via RETURNING
			if entity.ID == uuid.Nil {
				if err := tx.Where("user_id = ? AND name = ?", userID, name).
					Select("id").First(&entity).Error; err != nil {
					return fmt.Errorf("failed to load entity %q: %w", name, err)
				}
			}
			byName[name] = entity.ID

			mention := GraphMention{
				EntityID: entity.ID,
				ChunkID:  chunkID,
				Source:   source,
				Snippet:  snippet,
				ChunkIdx: chunkIdx,
			}
			if err := tx.Create(&mention).Error; err != nil {
				return fmt.Errorf("failed to record mention: %w", err)
			}
		}

		for _, r := range relations {
			srcID, okSrc := byName[normalizeName(r.Source)]
			dstID, okDst := byName[normalizeName(r.Target)]
			if !okSrc || !okDst || srcID == dstID {
				continue
			}

			relation := GraphRelation{
				UserID:   userID,
				SourceID: srcID,
				TargetID: dstID,
				Relation: r.Relation,
			}
			if err := tx.Create(&relation).Error; err != nil {
				return fmt.Errorf("failed to record relation: %w", err)
			}
		}

		return nil
	})
}

// NeighborMentions resolves entity names for a user, walks relations
// one hop in both directions, and returns the mentions of the whole
// neighborhood ordered by recency.
func (s *Store) NeighborMentions(ctx context.Context, userID uuid.UUID, names []string, limit int) ([]GraphMention, error) {
	normalized := make([]string, 0, len(names))
	for _, n := range names {
		if v := normalizeName(n); v != "" {
			normalized = append(normalized, v)
		}
	}
	if len(normalized) == 0 {
		return nil, nil
	}

	var seeds []GraphEntity
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND name IN ?", userID, normalized).
		Find(&seeds).Error
	if err != nil {
		return nil, fmt.Errorf("failed to resolve entities: %w", err)
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	seedIDs := make([]uuid.UUID, len(seeds))
	for i, e := range seeds {
		seedIDs[i] = e.ID
	}

	var relations []GraphRelation
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND (source_id IN ? OR target_id IN ?)", userID, seedIDs, seedIDs).
		Find(&relations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to walk relations: %w", err)
	}

	idSet := make(map[uuid.UUID]bool, len(seedIDs))
	for _, id := range seedIDs {
		idSet[id] = true
	}
	for _, r := range relations {
		idSet[r.SourceID] = true
		idSet[r.TargetID] = true
	}
	allIDs := make([]uuid.UUID, 0, len(idSet))
	for id := range idSet {
		allIDs = append(allIDs, id)
	}

	var mentions []GraphMention
	err = s.db.WithContext(ctx).
		Where("entity_id IN ?", allIDs).
		Order("id DESC").
		Limit(limit).
		Find(&mentions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load mentions: %w", err)
	}

	return mentions, nil
}

// DeleteByChunks removes mentions when their chunks are deleted.
// Entities and relations are kept; orphaned ones are harmless and may
// be re-mentioned by future documents.
func (s *Store) DeleteByChunks(ctx context.Context, chunkIDs []uuid.UUID) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("chunk_id IN ?", chunkIDs).
		Delete(&GraphMention{}).Error
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
