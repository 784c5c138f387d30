package search

import (
	"context"
	"log"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/agentindex/gateway/internal/apierror"
	"github.com/agentindex/gateway/internal/circuitbreaker"
	"github.com/agentindex/gateway/internal/core"
	"github.com/agentindex/gateway/internal/embed"
	"github.com/agentindex/gateway/internal/enrichment"
	"github.com/agentindex/gateway/internal/vectordb"
)

// DefaultMinScore is the similarity threshold applied when the request does
// not set one.
const DefaultMinScore = 0.3

// searchMode values reported in the response meta.
const (
	SearchModeVector   = "vector"
	SearchModeFilter   = "filter"
	SearchModeFallback = "fallback"
	SearchModeMerged   = "merged"
)

// VectorIndex is the slice of the index client the engine uses.
type VectorIndex interface {
	Search(ctx context.Context, p vectordb.SearchParams) ([]vectordb.ScoredPoint, error)
	Scroll(ctx context.Context, p vectordb.SearchParams) ([]vectordb.ScoredPoint, error)
	Count(ctx context.Context, f *vectordb.Filter) (int64, error)
}

// ChainLister is the SDK surface behind the fallback path.
type ChainLister interface {
	ListAgents(ctx context.Context, filters core.SearchFilters, cursor string, limit int) ([]core.AgentDetail, string, error)
	GetAgent(ctx context.Context, chainID int64, tokenID string) (*core.AgentDetail, error)
}

// Enrichment attaches classifications and reputations to assembled summaries.
type Enrichment interface {
	EnrichSummaries(ctx context.Context, summaries []core.AgentSummary) []core.AgentSummary
	QueueMissingClassifications(summaries []core.AgentSummary)
}

// ClassificationSource resolves the stored classification behind similar and
// complementary lookups.
type ClassificationSource interface {
	GetClassification(ctx context.Context, agentID string) (*core.Classification, error)
}

// Result is one page of a listing or search.
type Result struct {
	Items      []core.AgentSummary `json:"items"`
	Total      *int64              `json:"total,omitempty"`
	HasMore    bool                `json:"hasMore"`
	NextCursor string              `json:"nextCursor,omitempty"`
	SearchMode string              `json:"searchMode"`
}

// CompatibleResult splits compatibility matches by pipeline direction:
// upstream agents produce what the source consumes, downstream the mirror.
type CompatibleResult struct {
	Upstream   []core.AgentSummary `json:"upstream"`
	Downstream []core.AgentSummary `json:"downstream"`
}

// Engine routes queries between the vector index and the chain SDK and owns
// result assembly.
type Engine struct {
	index    VectorIndex
	chain    ChainLister
	embedder embed.Embedder
	enricher Enrichment
	classes  ClassificationSource
	breakers *circuitbreaker.GatewayBreakers
	logger   *log.Logger
}

func NewEngine(index VectorIndex, chain ChainLister, embedder embed.Embedder,
	enricher Enrichment, classes ClassificationSource, breakers *circuitbreaker.GatewayBreakers) *Engine {
	return &Engine{
		index:    index,
		chain:    chain,
		embedder: embedder,
		enricher: enricher,
		classes:  classes,
		breakers: breakers,
		logger:   log.New(log.Writer(), "[SEARCH] ", log.LstdFlags),
	}
}

// List serves GET /agents: filter-only scroll by default, vector search when
// a text query is present, SDK fallback when the index comes up empty.
func (e *Engine) List(ctx context.Context, q core.Query) (*Result, error) {
	offset, sdkCursor, err := e.resolveOffset(q)
	if err != nil {
		return nil, err
	}

	if bools := q.Filters.BoolFilters(); q.Filters.Mode() == core.FilterModeOR && len(bools) > 1 {
		return e.fanOut(ctx, q, bools)
	}

	filter := Translate(q.Filters)

	var vector []float32
	if q.Text != "" {
		vector, err = e.embedQuery(ctx, q.Text)
		if err != nil {
			// Listing degrades to filter-only ordering; only POST /search
			// treats a dead embedder as fatal.
			e.logger.Printf("embedder unavailable, listing without text match: %v", err)
			vector = nil
		}
	}

	points, err := e.fetchPage(ctx, vector, filter, q, offset)
	if err != nil {
		return nil, err
	}

	mode := SearchModeFilter
	if vector != nil {
		mode = SearchModeVector
	}

	if len(points) == 0 && q.Text == "" && allowsFallback(q.Filters) {
		return e.fallbackList(ctx, q, sdkCursor)
	}

	res := e.assemble(ctx, points, q, offset, mode)

	if mode == SearchModeFilter {
		if total, cerr := e.countFiltered(ctx, filter); cerr == nil {
			res.Total = &total
		}
	}
	return res, nil
}

// Search serves POST /search: always vector, query required, no fallback.
func (e *Engine) Search(ctx context.Context, q core.Query) (*Result, error) {
	if q.Text == "" {
		return nil, apierror.Validation("query is required")
	}

	offset, _, err := e.resolveOffset(q)
	if err != nil {
		return nil, err
	}

	if bools := q.Filters.BoolFilters(); q.Filters.Mode() == core.FilterModeOR && len(bools) > 1 {
		return e.fanOut(ctx, q, bools)
	}

	vector, err := e.embedQuery(ctx, q.Text)
	if err != nil {
		return nil, apierror.ServiceUnavailable("search", err)
	}

	points, err := e.fetchPage(ctx, vector, Translate(q.Filters), q, offset)
	if err != nil {
		return nil, err
	}
	return e.assemble(ctx, points, q, offset, SearchModeVector), nil
}

// Similar finds agents sharing the source's classified skills, widening to
// domain slugs when skills alone underfill the page.
func (e *Engine) Similar(ctx context.Context, agentID string, limit int) ([]core.AgentSummary, error) {
	c, err := e.classes.GetClassification(ctx, agentID)
	if err != nil {
		return nil, apierror.Internal(err)
	}
	if c == nil || (len(c.Skills) == 0 && len(c.Domains) == 0) {
		return []core.AgentSummary{}, nil
	}

	points, err := e.scrollSlugs(ctx, agentID, fieldSkills, slugsOf(c.Skills), limit)
	if err != nil {
		return nil, err
	}

	if len(points) < limit && len(c.Domains) > 0 {
		more, err := e.scrollSlugs(ctx, agentID, fieldDomains, slugsOf(c.Domains), limit)
		if err != nil {
			return nil, err
		}
		points = unionPoints(points, more, limit)
	}

	return e.summarize(ctx, points), nil
}

// Complementary finds agents in the source's domains with none of its skills.
func (e *Engine) Complementary(ctx context.Context, agentID string, limit int) ([]core.AgentSummary, error) {
	c, err := e.classes.GetClassification(ctx, agentID)
	if err != nil {
		return nil, apierror.Internal(err)
	}
	if c == nil || len(c.Domains) == 0 {
		return []core.AgentSummary{}, nil
	}

	filter := &vectordb.Filter{
		Must: []vectordb.Condition{
			vectordb.MatchAny(fieldDomains, vectordb.StringsToAny(slugsOf(c.Domains))...),
		},
	}
	if len(c.Skills) > 0 {
		filter.MustNot = append(filter.MustNot,
			vectordb.MatchAny(fieldSkills, vectordb.StringsToAny(slugsOf(c.Skills))...))
	}
	withoutAgent(filter, agentID)

	points, err := e.scroll(ctx, filter, limit)
	if err != nil {
		return nil, err
	}
	return e.summarize(ctx, points), nil
}

// Compatible matches on I/O modes: upstream agents emit what the source
// consumes, downstream agents consume what the source emits.
func (e *Engine) Compatible(ctx context.Context, id core.AgentID, limit int) (*CompatibleResult, error) {
	var detail *core.AgentDetail
	err := e.breakers.ChainSDK.Execute(ctx, func(ctx context.Context) error {
		var err error
		detail, err = e.chain.GetAgent(ctx, id.ChainID, id.TokenID)
		return err
	})
	if err != nil {
		return nil, apierror.ServiceUnavailable("registry", err)
	}
	if detail == nil {
		return nil, apierror.NotFound("agent")
	}

	out := &CompatibleResult{
		Upstream:   []core.AgentSummary{},
		Downstream: []core.AgentSummary{},
	}

	if len(detail.InputModes) > 0 {
		points, err := e.scrollSlugs(ctx, id.String(), fieldOutputModes, detail.InputModes, limit)
		if err != nil {
			return nil, err
		}
		out.Upstream = e.summarize(ctx, points)
	}
	if len(detail.OutputModes) > 0 {
		points, err := e.scrollSlugs(ctx, id.String(), fieldInputModes, detail.OutputModes, limit)
		if err != nil {
			return nil, err
		}
		out.Downstream = e.summarize(ctx, points)
	}
	return out, nil
}

// --- backends ---

// fetchPage runs one index round trip, over-fetching a single extra point so
// assemble can decide hasMore.
func (e *Engine) fetchPage(ctx context.Context, vector []float32, filter *vectordb.Filter, q core.Query, offset int) ([]vectordb.ScoredPoint, error) {
	params := vectordb.SearchParams{
		Vector:      vector,
		Filter:      filter,
		Limit:       q.Limit + 1,
		Offset:      offset,
		WithPayload: true,
	}

	var points []vectordb.ScoredPoint
	err := e.breakers.VectorIndex.Execute(ctx, func(ctx context.Context) error {
		var err error
		if vector != nil {
			params.ScoreThreshold = q.MinScore
			if params.ScoreThreshold == 0 {
				params.ScoreThreshold = DefaultMinScore
			}
			points, err = e.index.Search(ctx, params)
		} else {
			params.OrderBy = orderByFor(q.Sort, q.Order)
			points, err = e.index.Scroll(ctx, params)
		}
		return err
	})
	if err != nil {
		return nil, apierror.ServiceUnavailable("search", err)
	}
	return points, nil
}

// fanOut runs one search per capability boolean and merges by max score.
// Merged pages carry no cursor.
func (e *Engine) fanOut(ctx context.Context, q core.Query, bools map[string]bool) (*Result, error) {
	base := TranslateBase(q.Filters)

	var vector []float32
	if q.Text != "" {
		v, err := e.embedQuery(ctx, q.Text)
		if err != nil {
			e.logger.Printf("embedder unavailable, merged listing without text match: %v", err)
		} else {
			vector = v
		}
	}

	fields := make([]string, 0, len(bools))
	for f := range bools {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	branches := make([][]vectordb.ScoredPoint, len(fields))
	g, gctx := errgroup.WithContext(ctx)
	for i, field := range fields {
		i, field := i, field
		g.Go(func() error {
			params := vectordb.SearchParams{
				Vector:      vector,
				Filter:      WithBool(base, field, bools[field]),
				Limit:       q.Limit,
				WithPayload: true,
			}
			return e.breakers.VectorIndex.Execute(gctx, func(ctx context.Context) error {
				var err error
				if vector != nil {
					params.ScoreThreshold = q.MinScore
					if params.ScoreThreshold == 0 {
						params.ScoreThreshold = DefaultMinScore
					}
					branches[i], err = e.index.Search(ctx, params)
				} else {
					branches[i], err = e.index.Scroll(ctx, params)
				}
				return err
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apierror.ServiceUnavailable("search", err)
	}

	merged := mergeMaxScore(branches, q.Limit)
	items := e.summarize(ctx, merged)
	items = applyReputationFilter(items, q.Filters.MinRep, q.Filters.MaxRep)

	return &Result{
		Items:      items,
		HasMore:    false,
		SearchMode: SearchModeMerged,
	}, nil
}

// fallbackList serves the listing straight from the chain SDK when the index
// has nothing for the filter set.
func (e *Engine) fallbackList(ctx context.Context, q core.Query, sdkCursor string) (*Result, error) {
	var details []core.AgentDetail
	var next string
	err := e.breakers.ChainSDK.Execute(ctx, func(ctx context.Context) error {
		var err error
		details, next, err = e.chain.ListAgents(ctx, q.Filters, sdkCursor, q.Limit)
		return err
	})
	if err != nil {
		return nil, apierror.ServiceUnavailable("registry", err)
	}

	items := make([]core.AgentSummary, 0, len(details))
	for _, d := range details {
		items = append(items, enrichment.FromDetail(d))
	}
	items = e.enricher.EnrichSummaries(ctx, items)
	items = applyReputationFilter(items, q.Filters.MinRep, q.Filters.MaxRep)
	go e.enricher.QueueMissingClassifications(items)

	return &Result{
		Items:      items,
		HasMore:    next != "",
		NextCursor: next,
		SearchMode: SearchModeFallback,
	}, nil
}

// --- assembly ---

// assemble turns index points into the response page: summaries, enrichment,
// reputation filter and sort, cursor arithmetic.
func (e *Engine) assemble(ctx context.Context, points []vectordb.ScoredPoint, q core.Query, offset int, mode string) *Result {
	hasMore := len(points) > q.Limit
	if hasMore {
		points = points[:q.Limit]
	}

	items := e.summarize(ctx, points)
	items = applyReputationFilter(items, q.Filters.MinRep, q.Filters.MaxRep)
	if q.Sort == core.SortReputation && mode == SearchModeFilter {
		sortByReputation(items, q.Order)
	}
	go e.enricher.QueueMissingClassifications(items)

	res := &Result{
		Items:      items,
		HasMore:    hasMore,
		SearchMode: mode,
	}
	if hasMore {
		res.NextCursor = EncodeCursor(offset + q.Limit)
	}
	return res
}

// summarize assembles and enriches summaries for a point set.
func (e *Engine) summarize(ctx context.Context, points []vectordb.ScoredPoint) []core.AgentSummary {
	items := make([]core.AgentSummary, 0, len(points))
	for _, p := range points {
		items = append(items, enrichment.FromPoint(p))
	}
	return e.enricher.EnrichSummaries(ctx, items)
}

func (e *Engine) scroll(ctx context.Context, filter *vectordb.Filter, limit int) ([]vectordb.ScoredPoint, error) {
	var points []vectordb.ScoredPoint
	err := e.breakers.VectorIndex.Execute(ctx, func(ctx context.Context) error {
		var err error
		points, err = e.index.Scroll(ctx, vectordb.SearchParams{
			Filter:      filter,
			Limit:       limit,
			WithPayload: true,
		})
		return err
	})
	if err != nil {
		return nil, apierror.ServiceUnavailable("search", err)
	}
	return points, nil
}

func (e *Engine) scrollSlugs(ctx context.Context, excludeID, field string, values []string, limit int) ([]vectordb.ScoredPoint, error) {
	filter := withoutAgent(&vectordb.Filter{
		Must: []vectordb.Condition{
			vectordb.MatchAny(field, vectordb.StringsToAny(values)...),
		},
	}, excludeID)
	return e.scroll(ctx, filter, limit)
}

func (e *Engine) embedQuery(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := e.breakers.Embedder.Execute(ctx, func(ctx context.Context) error {
		var err error
		vector, err = e.embedder.Embed(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

func (e *Engine) countFiltered(ctx context.Context, filter *vectordb.Filter) (int64, error) {
	var total int64
	err := e.breakers.VectorIndex.Execute(ctx, func(ctx context.Context) error {
		var err error
		total, err = e.index.Count(ctx, filter)
		return err
	})
	return total, err
}

// resolveOffset prefers the cursor over a raw offset. A token that is not
// one of the engine's cursor shapes is kept as an SDK cursor for the
// fallback path.
func (e *Engine) resolveOffset(q core.Query) (offset int, sdkCursor string, err error) {
	if q.Cursor == "" {
		if q.Offset < 0 {
			return 0, "", apierror.Validation("offset must be >= 0")
		}
		return q.Offset, "", nil
	}
	off, derr := DecodeCursor(q.Cursor)
	if derr != nil {
		if allowsFallback(q.Filters) && q.Text == "" {
			return 0, q.Cursor, nil
		}
		return 0, "", derr
	}
	return off, "", nil
}

// allowsFallback gates the SDK path: the SDK only surfaces agents that do
// possess a registration file, so an explicit hasRegistrationFile=false
// must not fall back.
func allowsFallback(f core.SearchFilters) bool {
	return f.HasRegistrationFile == nil || *f.HasRegistrationFile
}

// applyReputationFilter enforces minRep/maxRep after assembly. Agents with
// no reputation record pass only when minRep is absent or zero; an inverted
// range yields an empty page without error.
func applyReputationFilter(items []core.AgentSummary, minRep, maxRep *float64) []core.AgentSummary {
	if minRep == nil && maxRep == nil {
		return items
	}
	if minRep != nil && maxRep != nil && *minRep > *maxRep {
		return []core.AgentSummary{}
	}

	out := items[:0]
	for _, it := range items {
		if it.ReputationScore == nil {
			if minRep == nil || *minRep == 0 {
				out = append(out, it)
			}
			continue
		}
		s := *it.ReputationScore
		if minRep != nil && s < *minRep {
			continue
		}
		if maxRep != nil && s > *maxRep {
			continue
		}
		out = append(out, it)
	}
	return out
}

func sortByReputation(items []core.AgentSummary, order string) {
	asc := order == "asc"
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].ReputationScore, items[j].ReputationScore
		switch {
		case a == nil && b == nil:
			return false
		case a == nil:
			return false // missing reputation sorts last either way
		case b == nil:
			return true
		case asc:
			return *a < *b
		default:
			return *a > *b
		}
	})
}

func orderByFor(sortField, order string) *vectordb.OrderBy {
	key := fieldCreatedAt
	switch sortField {
	case core.SortName:
		key = "name"
	case core.SortReputation:
		// Reputation lives outside the index; scroll by recency and
		// reorder after enrichment.
		key = fieldCreatedAt
	}
	dir := "desc"
	if order == "asc" {
		dir = "asc"
	}
	return &vectordb.OrderBy{Key: key, Direction: dir}
}

func slugsOf(scored []core.ScoredSlug) []string {
	out := make([]string, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.Slug)
	}
	return out
}

// unionPoints appends b's points not already in a, capped at limit.
func unionPoints(a, b []vectordb.ScoredPoint, limit int) []vectordb.ScoredPoint {
	seen := map[string]bool{}
	for _, p := range a {
		seen[pointAgentID(p)] = true
	}
	for _, p := range b {
		if len(a) >= limit {
			break
		}
		if id := pointAgentID(p); !seen[id] {
			seen[id] = true
			a = append(a, p)
		}
	}
	return a
}
