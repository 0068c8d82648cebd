package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/journal-matrix-api/internal/models"
	appErrors "github.com/noah-isme/journal-matrix-api/pkg/errors"
)

type memoryCacheRepo struct {
	items   map[string][]byte
	deleted []string
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.items == nil {
		m.items = map[string][]byte{}
	}
	m.items[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	m.items = nil
	return nil
}

func TestReferenceServiceGroupsCached(t *testing.T) {
	source := &journalSourceStub{groups: []models.Group{{ID: 2, Name: "ИВТ-21"}, {ID: 1, Name: "ИВТ-11"}}}
	cache := NewCacheService(&memoryCacheRepo{}, NewMetricsService(), time.Minute, nil, true)
	svc := NewReferenceService(source, cache, nil)

	groups, err := svc.Groups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ИВТ-11", groups[0].Name)

	groups, err = svc.Groups(context.Background())
	require.NoError(t, err)
	assert.Len(t, groups, 2)
	assert.Equal(t, 1, source.groupCalls)

	require.NoError(t, svc.Invalidate(context.Background()))
	_, err = svc.Groups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, source.groupCalls)
}

func TestReferenceServiceWithoutCache(t *testing.T) {
	source := &journalSourceStub{groups: []models.Group{{ID: 1, Name: "A"}}}
	svc := NewReferenceService(source, nil, nil)
	require.NoError(t, svc.Invalidate(context.Background()))

	_, err := svc.Groups(context.Background())
	require.NoError(t, err)
	_, err = svc.Groups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, source.groupCalls)
}

func TestReferenceServiceDisciplinesDeduped(t *testing.T) {
	source := &journalSourceStub{disciplines: []models.Discipline{
		{ID: 3, Name: "Physics"},
		{ID: 1, Name: "Algebra"},
		{ID: 3, Name: "Physics"},
		{ID: 0, Name: ""},
	}}
	svc := NewReferenceService(source, nil, nil)

	disciplines, err := svc.Disciplines(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []models.Discipline{{ID: 1, Name: "Algebra"}, {ID: 3, Name: "Physics"}}, disciplines)

	_, err = svc.Disciplines(context.Background(), 0)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
