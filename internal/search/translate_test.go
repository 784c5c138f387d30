package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentindex/gateway/internal/core"
	"github.com/agentindex/gateway/internal/vectordb"
)

func boolPtr(b bool) *bool { return &b }

func mustConds(f *vectordb.Filter) map[string]vectordb.Condition {
	out := map[string]vectordb.Condition{}
	for _, c := range f.Must {
		out[c.Key] = c
	}
	return out
}

func TestTranslateChainAndCapabilityFilters(t *testing.T) {
	f := Translate(core.SearchFilters{
		ChainIDs:        []int64{1, 8453},
		ExcludeChainIDs: []int64{97},
		Active:          boolPtr(true),
		MCP:             boolPtr(true),
		X402:            boolPtr(false),
	})

	must := mustConds(f)
	require.Contains(t, must, "chain_id")
	assert.Equal(t, []interface{}{int64(1), int64(8453)}, must["chain_id"].MatchAny)
	assert.Equal(t, true, must["active"].MatchValue)
	assert.Equal(t, true, must["has_mcp"].MatchValue)
	assert.Equal(t, false, must["x402_support"].MatchValue)

	require.Len(t, f.MustNot, 1)
	assert.Equal(t, "chain_id", f.MustNot[0].Key)
	assert.Equal(t, []interface{}{int64(97)}, f.MustNot[0].MatchAny)
}

func TestTranslateArraysANDMode(t *testing.T) {
	f := Translate(core.SearchFilters{
		Skills:  []string{"code-generation"},
		Domains: []string{"finance"},
	})

	assert.Nil(t, f.MinShould)
	must := mustConds(f)
	assert.Equal(t, []interface{}{"code-generation"}, must["skills"].MatchAny)
	assert.Equal(t, []interface{}{"finance"}, must["domains"].MatchAny)
}

func TestTranslateArraysORMode(t *testing.T) {
	f := Translate(core.SearchFilters{
		Skills:     []string{"code-generation"},
		Domains:    []string{"finance"},
		FilterMode: core.FilterModeOR,
	})

	require.NotNil(t, f.MinShould)
	assert.Equal(t, 1, f.MinShould.MinCount)
	assert.Len(t, f.MinShould.Conditions, 2)
	assert.NotContains(t, mustConds(f), "skills")
}

func TestTranslateSingleArrayORModeStaysMust(t *testing.T) {
	// One array condition in OR mode is equivalent to must.
	f := Translate(core.SearchFilters{
		Skills:     []string{"a", "b"},
		FilterMode: core.FilterModeOR,
	})
	assert.Nil(t, f.MinShould)
	assert.Contains(t, mustConds(f), "skills")
}

func TestTranslateIdentityNormalizesWallets(t *testing.T) {
	f := Translate(core.SearchFilters{
		Owner:         "0xABCDEF0123456789abcdef0123456789ABCDEF01",
		WalletAddress: "0xABCDEF0123456789abcdef0123456789ABCDEF01",
		ENS:           "agent.eth",
		DID:           "did:web:agent.example",
	})

	must := mustConds(f)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", must["owner"].MatchValue)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", must["wallet_address"].MatchValue)
	assert.Equal(t, "agent.eth", must["ens"].MatchValue)
	assert.Equal(t, "did:web:agent.example", must["did"].MatchValue)
}

func TestTranslateTrusts(t *testing.T) {
	withTrusts := Translate(core.SearchFilters{HasTrusts: boolPtr(true)})
	cond := mustConds(withTrusts)["supported_trusts"]
	require.NotNil(t, cond.ValuesCount)
	assert.Equal(t, 0, cond.ValuesCount.GT)

	withoutTrusts := Translate(core.SearchFilters{HasTrusts: boolPtr(false)})
	assert.True(t, mustConds(withoutTrusts)["supported_trusts"].IsEmpty)

	models := Translate(core.SearchFilters{TrustModels: []string{"x402", "eas"}})
	assert.Equal(t, []interface{}{"x402", "eas"}, mustConds(models)["supported_trusts"].MatchAny)
}

func TestTranslateDateRange(t *testing.T) {
	after := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f := Translate(core.SearchFilters{CreatedAfter: &after, CreatedBefore: &before})

	cond := mustConds(f)["created_at"]
	require.NotNil(t, cond.DatetimeRange)
	assert.Equal(t, "2025-01-01T00:00:00Z", cond.DatetimeRange.GTE)
	assert.Equal(t, "2025-06-01T00:00:00Z", cond.DatetimeRange.LTE)
}

func TestTranslateExclusions(t *testing.T) {
	f := Translate(core.SearchFilters{
		ExcludeSkills:  []string{"spam"},
		ExcludeDomains: []string{"gambling"},
	})

	keys := map[string][]interface{}{}
	for _, c := range f.MustNot {
		keys[c.Key] = c.MatchAny
	}
	assert.Equal(t, []interface{}{"spam"}, keys["skills"])
	assert.Equal(t, []interface{}{"gambling"}, keys["domains"])
}

func TestWithBoolDoesNotMutateBase(t *testing.T) {
	base := TranslateBase(core.SearchFilters{ChainIDs: []int64{1}})
	baseLen := len(base.Must)

	branch := WithBool(base, "has_mcp", true)
	assert.Len(t, base.Must, baseLen)
	assert.Len(t, branch.Must, baseLen+1)
	assert.Equal(t, true, branch.Must[baseLen].MatchValue)
}
