package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentindex/gateway/internal/core"
)

func listRequest(query string) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/api/v1/agents?"+query, nil)
}

func TestParseListQueryDefaults(t *testing.T) {
	q, err := parseListQuery(listRequest(""))
	require.NoError(t, err)

	assert.Empty(t, q.Text)
	assert.Equal(t, 20, q.Limit)
	assert.Zero(t, q.Offset)
	assert.Empty(t, q.Cursor)
	assert.Equal(t, core.FilterModeAND, q.Filters.Mode())
}

func TestParseListQueryTextAndSort(t *testing.T) {
	q, err := parseListQuery(listRequest("q=+defi+trading+&sort=reputation&order=desc"))
	require.NoError(t, err)

	assert.Equal(t, "defi trading", q.Text)
	assert.Equal(t, core.SortReputation, q.Sort)
	assert.Equal(t, "desc", q.Order)
}

func TestParseListQueryRejectsBadSort(t *testing.T) {
	_, err := parseListQuery(listRequest("sort=price"))
	assert.Error(t, err)

	_, err = parseListQuery(listRequest("order=sideways"))
	assert.Error(t, err)
}

func TestParseListQueryChainForms(t *testing.T) {
	q, err := parseListQuery(listRequest("chainId=1"))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, q.Filters.ChainIDs)

	q, err = parseListQuery(listRequest("chainIds=1,8453"))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 8453}, q.Filters.ChainIDs)

	q, err = parseListQuery(listRequest("chainIds[]=1&chainIds[]=8453"))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 8453}, q.Filters.ChainIDs)
}

func TestParseListQueryRejectsUnsupportedChain(t *testing.T) {
	_, err := parseListQuery(listRequest("chainId=2"))
	assert.Error(t, err)

	_, err = parseListQuery(listRequest("chainId=banana"))
	assert.Error(t, err)
}

func TestParseListQueryBoolFilters(t *testing.T) {
	q, err := parseListQuery(listRequest("mcp=true&a2a=false&active=1"))
	require.NoError(t, err)

	require.NotNil(t, q.Filters.MCP)
	assert.True(t, *q.Filters.MCP)
	require.NotNil(t, q.Filters.A2A)
	assert.False(t, *q.Filters.A2A)
	require.NotNil(t, q.Filters.Active)
	assert.True(t, *q.Filters.Active)
	assert.Nil(t, q.Filters.X402, "unset bool stays nil")

	_, err = parseListQuery(listRequest("mcp=maybe"))
	assert.Error(t, err)
}

func TestParseListQueryArrayFilters(t *testing.T) {
	q, err := parseListQuery(listRequest("skills=trading,nlp&domains[]=finance&excludeSkills=spam"))
	require.NoError(t, err)

	assert.Equal(t, []string{"trading", "nlp"}, q.Filters.Skills)
	assert.Equal(t, []string{"finance"}, q.Filters.Domains)
	assert.Equal(t, []string{"spam"}, q.Filters.ExcludeSkills)
}

func TestParseListQueryFilterMode(t *testing.T) {
	q, err := parseListQuery(listRequest("filterMode=OR"))
	require.NoError(t, err)
	assert.Equal(t, core.FilterModeOR, q.Filters.Mode())

	_, err = parseListQuery(listRequest("filterMode=XOR"))
	assert.Error(t, err)
}

func TestParseListQueryReputationBounds(t *testing.T) {
	q, err := parseListQuery(listRequest("minRep=40&maxRep=90.5"))
	require.NoError(t, err)
	assert.Equal(t, 40.0, *q.Filters.MinRep)
	assert.Equal(t, 90.5, *q.Filters.MaxRep)

	_, err = parseListQuery(listRequest("minRep=-1"))
	assert.Error(t, err)
	_, err = parseListQuery(listRequest("maxRep=101"))
	assert.Error(t, err)
}

func TestParseListQueryWalletValidation(t *testing.T) {
	wallet := "0xAbCdEf0123456789abcdef0123456789ABCDEF01"
	q, err := parseListQuery(listRequest("owner=" + wallet))
	require.NoError(t, err)
	assert.Equal(t, wallet, q.Filters.Owner)

	_, err = parseListQuery(listRequest("owner=0x123"))
	assert.Error(t, err)
	_, err = parseListQuery(listRequest("walletAddress=nope"))
	assert.Error(t, err)
}

func TestParseListQueryCreatedWindow(t *testing.T) {
	q, err := parseListQuery(listRequest("createdAfter=2026-01-01T00:00:00Z"))
	require.NoError(t, err)
	require.NotNil(t, q.Filters.CreatedAfter)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), q.Filters.CreatedAfter.UTC())

	_, err = parseListQuery(listRequest("createdBefore=yesterday"))
	assert.Error(t, err)
}

func TestParseListQueryPagination(t *testing.T) {
	q, err := parseListQuery(listRequest("limit=50&offset=10"))
	require.NoError(t, err)
	assert.Equal(t, 50, q.Limit)
	assert.Equal(t, 10, q.Offset)

	// limit above the cap clamps, page translates to offset.
	q, err = parseListQuery(listRequest("limit=500&page=3"))
	require.NoError(t, err)
	assert.Equal(t, 100, q.Limit)
	assert.Equal(t, 200, q.Offset)

	_, err = parseListQuery(listRequest("limit=0"))
	assert.Error(t, err)
	_, err = parseListQuery(listRequest("offset=-1"))
	assert.Error(t, err)
	_, err = parseListQuery(listRequest("page=0"))
	assert.Error(t, err)
}

func TestParseListQueryMinScore(t *testing.T) {
	q, err := parseListQuery(listRequest("minScore=0.7"))
	require.NoError(t, err)
	assert.Equal(t, 0.7, q.MinScore)

	_, err = parseListQuery(listRequest("minScore=1.5"))
	assert.Error(t, err)
}

func searchRequestBody(t *testing.T, body string) (core.Query, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(body))
	return parseSearchBody(req)
}

func TestParseSearchBody(t *testing.T) {
	q, err := searchRequestBody(t, `{
		"query": "defi yield",
		"filters": {"chainIds": [8453], "mcp": true},
		"minScore": 0.5,
		"limit": 30
	}`)
	require.NoError(t, err)

	assert.Equal(t, "defi yield", q.Text)
	assert.Equal(t, []int64{8453}, q.Filters.ChainIDs)
	require.NotNil(t, q.Filters.MCP)
	assert.True(t, *q.Filters.MCP)
	assert.Equal(t, 0.5, q.MinScore)
	assert.Equal(t, 30, q.Limit)
}

func TestParseSearchBodyDefaultsLimit(t *testing.T) {
	q, err := searchRequestBody(t, `{"query": "anything"}`)
	require.NoError(t, err)
	assert.Equal(t, 20, q.Limit)
}

func TestParseSearchBodyRejects(t *testing.T) {
	_, err := searchRequestBody(t, `{broken`)
	assert.Error(t, err)

	_, err = searchRequestBody(t, `{"query": "x", "minScore": 2}`)
	assert.Error(t, err)

	_, err = searchRequestBody(t, `{"query": "x", "filters": {"chainIds": [999]}}`)
	assert.Error(t, err)

	_, err = searchRequestBody(t, `{"query": "x", "limit": 0}`)
	assert.Error(t, err)
}
