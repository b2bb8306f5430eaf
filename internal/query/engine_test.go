// internal/query/engine_test.go
package query

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	gh "github.com/google/go-github/v62/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	custom_errors "github-integration/internal/errors"
	"github-integration/internal/model"
	"github-integration/internal/store"
	"github-integration/internal/store/memstore"
)

// MockStore is a mock of the store.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) InsertOne(ctx context.Context, collection string, doc model.Document) (string, error) {
	args := m.Called(ctx, collection, doc)
	return args.String(0), args.Error(1)
}
func (m *MockStore) InsertMany(ctx context.Context, collection string, docs []model.Document) (int64, error) {
	args := m.Called(ctx, collection, docs)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockStore) FindOne(ctx context.Context, collection string, filter *store.Predicate) (model.Document, error) {
	args := m.Called(ctx, collection, filter)
	return args.Get(0).(model.Document), args.Error(1)
}
func (m *MockStore) Find(ctx context.Context, collection string, filter *store.Predicate, opts store.FindOptions) ([]model.Document, error) {
	args := m.Called(ctx, collection, filter, opts)
	return args.Get(0).([]model.Document), args.Error(1)
}
func (m *MockStore) Count(ctx context.Context, collection string, filter *store.Predicate) (int64, error) {
	args := m.Called(ctx, collection, filter)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockStore) UpdateOne(ctx context.Context, collection string, filter *store.Predicate, set model.Document) (bool, error) {
	args := m.Called(ctx, collection, filter, set)
	return args.Bool(0), args.Error(1)
}
func (m *MockStore) DeleteMany(ctx context.Context, collection string, filter *store.Predicate) (int64, error) {
	args := m.Called(ctx, collection, filter)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockStore) HasTextIndex(ctx context.Context, collection string) (bool, error) {
	args := m.Called(ctx, collection)
	return args.Bool(0), args.Error(1)
}
func (m *MockStore) Close() {
	m.Called()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func seedRepos(t *testing.T, s store.Store, n int) {
	t.Helper()
	docs := make([]model.Document, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, model.Document{
			"name":                       fmt.Sprintf("repo-%02d", i),
			"stargazers_count":           i,
			model.FieldIntegrationUserID: int64(7),
		})
	}
	_, err := s.InsertMany(context.Background(), model.CollectionRepos, docs)
	require.NoError(t, err)
}

func TestEngine_GetPage_Pagination(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedRepos(t, s, 47)
	engine := NewEngine(s, testLogger())

	first, err := engine.GetPage(ctx, PageRequest{Collection: model.CollectionRepos, Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Len(t, first.Data, 20)
	assert.Equal(t, Pagination{CurrentPage: 1, TotalPages: 3, TotalItems: 47, ItemsPerPage: 20, HasNext: true, HasPrevious: false}, first.Pagination)
	assert.Equal(t, "repo-00", first.Data[0]["name"])

	last, err := engine.GetPage(ctx, PageRequest{Collection: model.CollectionRepos, Page: 3, Limit: 20})
	require.NoError(t, err)
	assert.Len(t, last.Data, 7)
	assert.False(t, last.Pagination.HasNext)
	assert.True(t, last.Pagination.HasPrevious)
	assert.Equal(t, "repo-40", last.Data[0]["name"])

	beyond, err := engine.GetPage(ctx, PageRequest{Collection: model.CollectionRepos, Page: 9, Limit: 20})
	require.NoError(t, err)
	assert.NotNil(t, beyond.Data)
	assert.Empty(t, beyond.Data)
	assert.False(t, beyond.Pagination.HasNext)
}

func TestEngine_GetPage_Clamping(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedRepos(t, s, 30)
	engine := NewEngine(s, testLogger())

	tests := []struct {
		name      string
		page      int
		limit     int
		wantPage  int
		wantLimit int
	}{
		{name: "defaults", page: 0, limit: 0, wantPage: 1, wantLimit: DefaultLimit},
		{name: "negative page", page: -3, limit: 10, wantPage: 1, wantLimit: 10},
		{name: "limit above maximum", page: 1, limit: 500, wantPage: 1, wantLimit: DefaultLimit},
		{name: "negative limit", page: 1, limit: -1, wantPage: 1, wantLimit: DefaultLimit},
		{name: "maximum limit", page: 1, limit: MaxLimit, wantPage: 1, wantLimit: MaxLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.GetPage(ctx, PageRequest{Collection: model.CollectionRepos, Page: tt.page, Limit: tt.limit})

			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, res.Pagination.CurrentPage)
			assert.Equal(t, tt.wantLimit, res.Pagination.ItemsPerPage)
		})
	}
}

func TestEngine_GetPage_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		req  PageRequest
	}{
		{name: "collection outside the allow-list", req: PageRequest{Collection: "system.users"}},
		{name: "identity collection", req: PageRequest{Collection: model.CollectionIntegration}},
		{name: "malformed filter", req: PageRequest{Collection: model.CollectionRepos, Filter: `{"name": `}},
		{name: "filter that is not an object", req: PageRequest{Collection: model.CollectionRepos, Filter: `["name"]`}},
		{name: "unsupported operator", req: PageRequest{Collection: model.CollectionRepos, Filter: `{"stars": {"$gt": 5}}`}},
		{name: "invalid regex", req: PageRequest{Collection: model.CollectionRepos, Filter: `{"name": {"$regex": "("}}`}},
		{name: "unknown sort order", req: PageRequest{Collection: model.CollectionRepos, SortOrder: "sideways"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := new(MockStore)
			engine := NewEngine(s, testLogger())

			_, err := engine.GetPage(ctx, tt.req)

			require.Error(t, err)
			assert.True(t, custom_errors.IsValidation(err))
			s.AssertNotCalled(t, "Count", mock.Anything, mock.Anything, mock.Anything)
			s.AssertNotCalled(t, "Find", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestEngine_GetPage_FilterAndSearch(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	_, err := s.InsertMany(ctx, model.CollectionIssues, []model.Document{
		{"title": "Fix login crash", "state": "open", model.FieldIntegrationUserID: 7},
		{"title": "Fix typo", "state": "closed", model.FieldIntegrationUserID: 7},
		{"title": "Add dark mode", "state": "open", "body": "would FIX eyes", model.FieldIntegrationUserID: 7},
		{"title": "Crash on start", "state": "open", model.FieldIntegrationUserID: 8},
		{"title": "Fix everything", "state": "open", model.FieldIntegrationUserID: 8},
	})
	require.NoError(t, err)
	engine := NewEngine(s, testLogger())

	res, err := engine.GetPage(ctx, PageRequest{
		Collection: model.CollectionIssues,
		Filter:     `{"state": "open"}`,
		Search:     "fix",
		SortBy:     "title",
	})
	require.NoError(t, err)

	var titles []any
	for _, doc := range res.Data {
		titles = append(titles, doc["title"])
	}
	assert.Equal(t, []any{"Add dark mode", "Fix everything", "Fix login crash"}, titles)
	assert.True(t, res.Meta.FiltersApplied)
	assert.True(t, res.Meta.SearchApplied)
	require.NotNil(t, res.Meta.SortBy)
	assert.Equal(t, "title", *res.Meta.SortBy)

	t.Run("scoped to one identity", func(t *testing.T) {
		userID := int64(8)
		res, err := engine.GetPage(ctx, PageRequest{Collection: model.CollectionIssues, Search: "fix", UserID: &userID})

		require.NoError(t, err)
		require.Len(t, res.Data, 1)
		assert.Equal(t, "Fix everything", res.Data[0]["title"])
	})

	t.Run("descending sort", func(t *testing.T) {
		res, err := engine.GetPage(ctx, PageRequest{Collection: model.CollectionIssues, SortBy: "title", SortOrder: "DESC", Limit: 1})

		require.NoError(t, err)
		assert.Equal(t, "desc", res.Meta.SortOrder)
		assert.Equal(t, "Fix typo", res.Data[0]["title"])
	})

	t.Run("no filter and no search", func(t *testing.T) {
		res, err := engine.GetPage(ctx, PageRequest{Collection: model.CollectionIssues})

		require.NoError(t, err)
		assert.False(t, res.Meta.FiltersApplied)
		assert.False(t, res.Meta.SearchApplied)
		assert.Nil(t, res.Meta.SortBy)
		assert.Equal(t, "asc", res.Meta.SortOrder)
		assert.EqualValues(t, 5, res.Pagination.TotalItems)
	})
}

func TestEngine_GetPage_NullFilterMatchesOmittedFields(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	// Mirrored issues carry GitHub's JSON shape, which omits unset fields such as closed_at.
	open, err := model.ToDocument(&gh.Issue{ID: gh.Int64(1), Title: gh.String("Rocket explodes"), State: gh.String("open")})
	require.NoError(t, err)
	require.NotContains(t, open, "closed_at")
	closed, err := model.ToDocument(&gh.Issue{
		ID:       gh.Int64(2),
		Title:    gh.String("Fix typo"),
		State:    gh.String("closed"),
		ClosedAt: &gh.Timestamp{Time: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
	_, err = s.InsertMany(ctx, model.CollectionIssues, []model.Document{open, closed})
	require.NoError(t, err)
	engine := NewEngine(s, testLogger())

	res, err := engine.GetPage(ctx, PageRequest{Collection: model.CollectionIssues, Filter: `{"closed_at": null}`})

	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "Rocket explodes", res.Data[0]["title"])
}

func TestEngine_GlobalSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects short keywords without touching the store", func(t *testing.T) {
		s := new(MockStore)
		engine := NewEngine(s, testLogger())

		for _, q := range []string{"", "a", "  b  "} {
			_, err := engine.GlobalSearch(ctx, q)
			assert.True(t, custom_errors.IsValidation(err), "keyword %q", q)
		}
		s.AssertNotCalled(t, "HasTextIndex", mock.Anything, mock.Anything)
	})

	t.Run("searches every collection with a fallback where no text index exists", func(t *testing.T) {
		s := memstore.New(memstore.WithTextIndex(model.CollectionRepos))
		_, err := s.InsertMany(ctx, model.CollectionRepos, []model.Document{
			{"name": "rocket-engine", "description": "A rocket engine"},
			{"name": "rockets", "description": "Toys"},
		})
		require.NoError(t, err)
		_, err = s.InsertOne(ctx, model.CollectionIssues, model.Document{"title": "Rocketry docs"})
		require.NoError(t, err)
		_, err = s.InsertOne(ctx, model.CollectionUsers, model.Document{"login": "rocket-man"})
		require.NoError(t, err)
		engine := NewEngine(s, testLogger())

		res, err := engine.GlobalSearch(ctx, " rocket ")

		require.NoError(t, err)
		assert.Equal(t, AllowedCollections(), res.CollectionsSearched)
		assert.Len(t, res.Results, len(AllowedCollections()))
		// Native text search matches whole words only.
		assert.Len(t, res.Results[model.CollectionRepos], 1)
		// Substring fallback.
		assert.Len(t, res.Results[model.CollectionIssues], 1)
		assert.Len(t, res.Results[model.CollectionUsers], 1)
		assert.Empty(t, res.Results[model.CollectionCommits])
		assert.Equal(t, 3, res.TotalResults)
	})

	t.Run("uses the native text predicate when the collection is indexed", func(t *testing.T) {
		s := new(MockStore)
		for _, c := range AllowedCollections() {
			indexed := c == model.CollectionPulls
			s.On("HasTextIndex", ctx, c).Return(indexed, nil).Once()
		}
		s.On("Find", ctx, model.CollectionPulls, store.Text("fix"), store.FindOptions{Limit: SearchLimit}).
			Return([]model.Document{{"title": "fix"}}, nil).Once()
		s.On("Find", ctx, mock.Anything, store.KeywordMatch("fix"), store.FindOptions{Limit: SearchLimit}).
			Return([]model.Document(nil), nil).Times(len(AllowedCollections()) - 1)
		engine := NewEngine(s, testLogger())

		res, err := engine.GlobalSearch(ctx, "fix")

		require.NoError(t, err)
		assert.Equal(t, 1, res.TotalResults)
		s.AssertExpectations(t)
	})

	t.Run("caps results per collection", func(t *testing.T) {
		s := memstore.New()
		docs := make([]model.Document, 0, 60)
		for i := 0; i < 60; i++ {
			docs = append(docs, model.Document{"message": "x", "title": fmt.Sprintf("bugfix %d", i)})
		}
		_, err := s.InsertMany(ctx, model.CollectionPulls, docs)
		require.NoError(t, err)
		engine := NewEngine(s, testLogger())

		res, err := engine.GlobalSearch(ctx, "bugfix")

		require.NoError(t, err)
		assert.Len(t, res.Results[model.CollectionPulls], SearchLimit)
	})
}
