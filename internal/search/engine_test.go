package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentindex/gateway/internal/circuitbreaker"
	"github.com/agentindex/gateway/internal/core"
	"github.com/agentindex/gateway/internal/vectordb"
)

// --- fakes ---

type fakeIndex struct {
	searchFn func(p vectordb.SearchParams) ([]vectordb.ScoredPoint, error)
	scrollFn func(p vectordb.SearchParams) ([]vectordb.ScoredPoint, error)
	count    int64

	searchCalls int
	scrollCalls int
}

func (f *fakeIndex) Search(_ context.Context, p vectordb.SearchParams) ([]vectordb.ScoredPoint, error) {
	f.searchCalls++
	if f.searchFn == nil {
		return nil, nil
	}
	return f.searchFn(p)
}

func (f *fakeIndex) Scroll(_ context.Context, p vectordb.SearchParams) ([]vectordb.ScoredPoint, error) {
	f.scrollCalls++
	if f.scrollFn == nil {
		return nil, nil
	}
	return f.scrollFn(p)
}

func (f *fakeIndex) Count(context.Context, *vectordb.Filter) (int64, error) {
	return f.count, nil
}

type fakeChain struct {
	items      []core.AgentDetail
	nextCursor string
	listCalls  int
	gotCursor  string
}

func (f *fakeChain) ListAgents(_ context.Context, _ core.SearchFilters, cursor string, _ int) ([]core.AgentDetail, string, error) {
	f.listCalls++
	f.gotCursor = cursor
	return f.items, f.nextCursor, nil
}

func (f *fakeChain) GetAgent(context.Context, int64, string) (*core.AgentDetail, error) {
	return nil, nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vec, f.err
}

// fakeEnrichment applies reputation scores from a fixed map.
type fakeEnrichment struct {
	reputations map[string]float64
}

func (f *fakeEnrichment) EnrichSummaries(_ context.Context, summaries []core.AgentSummary) []core.AgentSummary {
	for i := range summaries {
		if score, ok := f.reputations[summaries[i].ID]; ok {
			s := score
			summaries[i].ReputationScore = &s
		}
	}
	return summaries
}

func (f *fakeEnrichment) QueueMissingClassifications([]core.AgentSummary) {}

type fakeClasses struct {
	c *core.Classification
}

func (f *fakeClasses) GetClassification(context.Context, string) (*core.Classification, error) {
	return f.c, nil
}

func newTestEngine(index *fakeIndex, chain *fakeChain, emb *fakeEmbedder, enr *fakeEnrichment, classes *fakeClasses) *Engine {
	if chain == nil {
		chain = &fakeChain{}
	}
	if emb == nil {
		emb = &fakeEmbedder{vec: []float32{0.1, 0.2}}
	}
	if enr == nil {
		enr = &fakeEnrichment{}
	}
	if classes == nil {
		classes = &fakeClasses{}
	}
	return NewEngine(index, chain, emb, enr, classes, circuitbreaker.NewGatewayBreakers())
}

func points(ids ...string) []vectordb.ScoredPoint {
	out := make([]vectordb.ScoredPoint, 0, len(ids))
	for _, id := range ids {
		out = append(out, point(id, 0.5))
	}
	return out
}

// --- List ---

func TestListFilterModeScrolls(t *testing.T) {
	index := &fakeIndex{
		scrollFn: func(p vectordb.SearchParams) ([]vectordb.ScoredPoint, error) {
			return points("1:1", "1:2"), nil
		},
		count: 2,
	}
	e := newTestEngine(index, nil, nil, nil, nil)

	res, err := e.List(context.Background(), core.Query{Limit: 20})
	require.NoError(t, err)

	assert.Equal(t, SearchModeFilter, res.SearchMode)
	assert.Len(t, res.Items, 2)
	assert.False(t, res.HasMore)
	assert.Empty(t, res.NextCursor)
	require.NotNil(t, res.Total)
	assert.Equal(t, int64(2), *res.Total)
	assert.Equal(t, 1, index.scrollCalls)
	assert.Zero(t, index.searchCalls)
}

func TestListWithQueryUsesVectorSearch(t *testing.T) {
	index := &fakeIndex{
		searchFn: func(p vectordb.SearchParams) ([]vectordb.ScoredPoint, error) {
			assert.InDelta(t, DefaultMinScore, p.ScoreThreshold, 1e-9)
			return points("1:1"), nil
		},
	}
	e := newTestEngine(index, nil, nil, nil, nil)

	res, err := e.List(context.Background(), core.Query{Text: "trading bots", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, SearchModeVector, res.SearchMode)
	assert.Nil(t, res.Total) // totals only on filter scrolls
}

func TestListOverfetchDrivesCursor(t *testing.T) {
	// limit+1 points back means one more page exists.
	index := &fakeIndex{
		scrollFn: func(p vectordb.SearchParams) ([]vectordb.ScoredPoint, error) {
			assert.Equal(t, 3, p.Limit)
			return points("1:1", "1:2", "1:3"), nil
		},
	}
	e := newTestEngine(index, nil, nil, nil, nil)

	res, err := e.List(context.Background(), core.Query{Limit: 2})
	require.NoError(t, err)

	assert.Len(t, res.Items, 2)
	assert.True(t, res.HasMore)
	off, err := DecodeCursor(res.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, 2, off)
}

func TestListFallsBackToChainWhenIndexEmpty(t *testing.T) {
	index := &fakeIndex{}
	chain := &fakeChain{
		items:      []core.AgentDetail{{AgentSummary: core.AgentSummary{ID: "1:7"}}},
		nextCursor: "sdk-next",
	}
	e := newTestEngine(index, chain, nil, nil, nil)

	res, err := e.List(context.Background(), core.Query{Limit: 20})
	require.NoError(t, err)

	assert.Equal(t, SearchModeFallback, res.SearchMode)
	assert.Equal(t, 1, chain.listCalls)
	assert.Len(t, res.Items, 1)
	assert.True(t, res.HasMore)
	assert.Equal(t, "sdk-next", res.NextCursor)
}

func TestListNoFallbackWhenRegistrationFileFalse(t *testing.T) {
	// The SDK only knows agents with registration files; an explicit false
	// must not reach for it.
	index := &fakeIndex{}
	chain := &fakeChain{items: []core.AgentDetail{{AgentSummary: core.AgentSummary{ID: "1:7"}}}}
	e := newTestEngine(index, chain, nil, nil, nil)

	hasFile := false
	res, err := e.List(context.Background(), core.Query{
		Limit:   20,
		Filters: core.SearchFilters{HasRegistrationFile: &hasFile},
	})
	require.NoError(t, err)

	assert.Zero(t, chain.listCalls)
	assert.Equal(t, SearchModeFilter, res.SearchMode)
	assert.Empty(t, res.Items)
}

func TestListNoFallbackWithTextQuery(t *testing.T) {
	index := &fakeIndex{}
	chain := &fakeChain{items: []core.AgentDetail{{AgentSummary: core.AgentSummary{ID: "1:7"}}}}
	e := newTestEngine(index, chain, nil, nil, nil)

	res, err := e.List(context.Background(), core.Query{Text: "anything", Limit: 20})
	require.NoError(t, err)
	assert.Zero(t, chain.listCalls)
	assert.Empty(t, res.Items)
}

func TestListSDKCursorPassesThrough(t *testing.T) {
	// A token that is not one of the engine's cursor shapes rides through to
	// the SDK when the fallback path is open.
	index := &fakeIndex{}
	chain := &fakeChain{}
	e := newTestEngine(index, chain, nil, nil, nil)

	_, err := e.List(context.Background(), core.Query{Limit: 20, Cursor: "sdk-opaque-token"})
	require.NoError(t, err)
	assert.Equal(t, "sdk-opaque-token", chain.gotCursor)
}

func TestListInvalidCursorRejectedWhenNoFallback(t *testing.T) {
	e := newTestEngine(&fakeIndex{}, nil, nil, nil, nil)

	hasFile := false
	_, err := e.List(context.Background(), core.Query{
		Limit:   20,
		Cursor:  "sdk-opaque-token",
		Filters: core.SearchFilters{HasRegistrationFile: &hasFile},
	})
	assert.Error(t, err)
}

func TestListEmbedderOutageDegradesToScroll(t *testing.T) {
	index := &fakeIndex{
		scrollFn: func(p vectordb.SearchParams) ([]vectordb.ScoredPoint, error) {
			return points("1:1"), nil
		},
	}
	e := newTestEngine(index, nil, &fakeEmbedder{err: errors.New("embedder down")}, nil, nil)

	res, err := e.List(context.Background(), core.Query{Text: "trading", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, SearchModeFilter, res.SearchMode)
	assert.Equal(t, 1, index.scrollCalls)
}

// --- Search ---

func TestSearchRequiresQuery(t *testing.T) {
	e := newTestEngine(&fakeIndex{}, nil, nil, nil, nil)
	_, err := e.Search(context.Background(), core.Query{Limit: 20})
	assert.Error(t, err)
}

func TestSearchEmbedderOutageIsFatal(t *testing.T) {
	e := newTestEngine(&fakeIndex{}, nil, &fakeEmbedder{err: errors.New("down")}, nil, nil)
	_, err := e.Search(context.Background(), core.Query{Text: "q", Limit: 20})
	assert.Error(t, err)
}

// --- OR fan-out ---

func TestORModeMultipleBoolsFanOut(t *testing.T) {
	index := &fakeIndex{
		searchFn: func(p vectordb.SearchParams) ([]vectordb.ScoredPoint, error) {
			// Each branch carries exactly one capability condition.
			var caps int
			for _, c := range p.Filter.Must {
				if c.Key == "has_mcp" || c.Key == "has_a2a" {
					caps++
				}
			}
			assert.Equal(t, 1, caps)
			return points("1:1"), nil
		},
	}
	e := newTestEngine(index, nil, nil, nil, nil)

	mcp, a2a := true, true
	res, err := e.List(context.Background(), core.Query{
		Text:  "bots",
		Limit: 20,
		Filters: core.SearchFilters{
			MCP:        &mcp,
			A2A:        &a2a,
			FilterMode: core.FilterModeOR,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, SearchModeMerged, res.SearchMode)
	assert.Equal(t, 2, index.searchCalls)
	assert.Empty(t, res.NextCursor) // merged pages never carry a cursor
	assert.Len(t, res.Items, 1)     // same agent from both branches, merged
}

func TestORModeSingleBoolStaysOnNormalPath(t *testing.T) {
	index := &fakeIndex{
		scrollFn: func(p vectordb.SearchParams) ([]vectordb.ScoredPoint, error) {
			return points("1:1"), nil
		},
	}
	e := newTestEngine(index, nil, nil, nil, nil)

	mcp := true
	res, err := e.List(context.Background(), core.Query{
		Limit:   20,
		Filters: core.SearchFilters{MCP: &mcp, FilterMode: core.FilterModeOR},
	})
	require.NoError(t, err)
	assert.Equal(t, SearchModeFilter, res.SearchMode)
	assert.Zero(t, index.searchCalls)
}

// --- reputation post-filter ---

func repPtr(f float64) *float64 { return &f }

func summaries(scores map[string]*float64) []core.AgentSummary {
	var out []core.AgentSummary
	for id, s := range scores {
		out = append(out, core.AgentSummary{ID: id, ReputationScore: s})
	}
	return out
}

func TestReputationFilterBand(t *testing.T) {
	items := []core.AgentSummary{
		{ID: "1:1", ReputationScore: repPtr(20)},
		{ID: "1:2", ReputationScore: repPtr(55)},
		{ID: "1:3", ReputationScore: repPtr(90)},
	}
	got := applyReputationFilter(items, repPtr(50), repPtr(60))
	require.Len(t, got, 1)
	assert.Equal(t, "1:2", got[0].ID)
}

func TestReputationFilterNoRecordPassesOnlyWithoutMinRep(t *testing.T) {
	items := summaries(map[string]*float64{"1:1": nil})

	assert.Len(t, applyReputationFilter(summaries(map[string]*float64{"1:1": nil}), nil, repPtr(80)), 1)
	assert.Len(t, applyReputationFilter(summaries(map[string]*float64{"1:1": nil}), repPtr(0), nil), 1)
	assert.Empty(t, applyReputationFilter(items, repPtr(10), nil))
}

func TestReputationFilterInvertedRangeIsEmpty(t *testing.T) {
	items := []core.AgentSummary{{ID: "1:1", ReputationScore: repPtr(50)}}
	assert.Empty(t, applyReputationFilter(items, repPtr(80), repPtr(20)))
}

func TestListAppliesReputationFilter(t *testing.T) {
	index := &fakeIndex{
		scrollFn: func(p vectordb.SearchParams) ([]vectordb.ScoredPoint, error) {
			return points("1:1", "1:2"), nil
		},
	}
	enr := &fakeEnrichment{reputations: map[string]float64{"1:1": 30, "1:2": 80}}
	e := newTestEngine(index, nil, nil, enr, nil)

	res, err := e.List(context.Background(), core.Query{
		Limit:   20,
		Filters: core.SearchFilters{MinRep: repPtr(50)},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "1:2", res.Items[0].ID)
}

// --- relations ---

func TestSimilarWidensWithDomains(t *testing.T) {
	classes := &fakeClasses{c: &core.Classification{
		AgentID: "1:1",
		Skills:  []core.ScoredSlug{{Slug: "code-generation", Confidence: 0.9}},
		Domains: []core.ScoredSlug{{Slug: "software", Confidence: 0.8}},
	}}
	index := &fakeIndex{
		scrollFn: func(p vectordb.SearchParams) ([]vectordb.ScoredPoint, error) {
			for _, c := range p.Filter.Must {
				if c.Key == "skills" {
					return points("1:2"), nil
				}
			}
			return points("1:3"), nil
		},
	}
	e := newTestEngine(index, nil, nil, nil, classes)

	items, err := e.Similar(context.Background(), "1:1", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, index.scrollCalls) // skills first, then domain widening
	assert.Len(t, items, 2)
}

func TestSimilarWithoutClassificationIsEmpty(t *testing.T) {
	e := newTestEngine(&fakeIndex{}, nil, nil, nil, &fakeClasses{})
	items, err := e.Similar(context.Background(), "1:1", 5)
	require.NoError(t, err)
	assert.Empty(t, items)
}
