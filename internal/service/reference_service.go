package service

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/journal-matrix-api/internal/models"
	appErrors "github.com/noah-isme/journal-matrix-api/pkg/errors"
)

const (
	groupsCacheKey      = "journal:groups"
	disciplinesCacheKey = "journal:groups:%d:disciplines"
	referenceCacheScope = "journal:groups*"
)

type referenceSource interface {
	ListGroups(ctx context.Context) ([]models.Group, error)
	ListDisciplines(ctx context.Context, groupID int64) ([]models.Discipline, error)
}

// ReferenceService lists the selectors of the journal page. Results may be cached; records never are.
type ReferenceService struct {
	source referenceSource
	cache  *CacheService
	logger *zap.Logger
}

// NewReferenceService constructs the reference service. cache may be nil.
func NewReferenceService(source referenceSource, cache *CacheService, logger *zap.Logger) *ReferenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferenceService{source: source, cache: cache, logger: logger}
}

// Groups returns every group sorted by name.
func (s *ReferenceService) Groups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if hit, _ := s.cache.Get(ctx, groupsCacheKey, &groups); hit {
		return groups, nil
	}

	groups, err := s.source.ListGroups(ctx)
	if err != nil {
		return nil, fetchError(err, "failed to fetch groups")
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })

	_ = s.cache.Set(ctx, groupsCacheKey, groups, 0)
	return groups, nil
}

// Disciplines returns the distinct disciplines scheduled for a group.
func (s *ReferenceService) Disciplines(ctx context.Context, groupID int64) ([]models.Discipline, error) {
	if groupID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "group id must be positive")
	}

	key := fmt.Sprintf(disciplinesCacheKey, groupID)
	var disciplines []models.Discipline
	if hit, _ := s.cache.Get(ctx, key, &disciplines); hit {
		return disciplines, nil
	}

	items, err := s.source.ListDisciplines(ctx, groupID)
	if err != nil {
		return nil, fetchError(err, "failed to fetch disciplines")
	}
	disciplines = dedupeDisciplines(items)

	_ = s.cache.Set(ctx, key, disciplines, 0)
	return disciplines, nil
}

// Invalidate drops cached reference lists.
func (s *ReferenceService) Invalidate(ctx context.Context) error {
	return s.cache.Invalidate(ctx, referenceCacheScope)
}

func dedupeDisciplines(items []models.Discipline) []models.Discipline {
	seen := make(map[string]struct{}, len(items))
	out := make([]models.Discipline, 0, len(items))
	for _, item := range items {
		if item.Name == "" {
			continue
		}
		if _, ok := seen[item.Name]; ok {
			continue
		}
		seen[item.Name] = struct{}{}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
