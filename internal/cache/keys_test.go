package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParamsHashStableAcrossKeyOrder(t *testing.T) {
	a := ParamsHash(map[string]interface{}{"limit": 20, "chainIds": []int64{1, 8453}})
	b := ParamsHash(map[string]interface{}{"chainIds": []int64{1, 8453}, "limit": 20})
	assert.Equal(t, a, b)
}

func TestParamsHashStableAcrossArrayOrder(t *testing.T) {
	a := ParamsHash(map[string]interface{}{"skills": []string{"trading", "nlp"}})
	b := ParamsHash(map[string]interface{}{"skills": []string{"nlp", "trading"}})
	assert.Equal(t, a, b)

	c := ParamsHash(map[string]interface{}{"chainIds": []int64{8453, 1}})
	d := ParamsHash(map[string]interface{}{"chainIds": []int64{1, 8453}})
	assert.Equal(t, c, d)
}

func TestParamsHashDistinguishesValues(t *testing.T) {
	a := ParamsHash(map[string]interface{}{"mcp": true})
	b := ParamsHash(map[string]interface{}{"mcp": false})
	c := ParamsHash(map[string]interface{}{"a2a": true})
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestParamsHashNestedMaps(t *testing.T) {
	a := ParamsHash(map[string]interface{}{
		"filters": map[string]interface{}{"mcp": true, "chainId": int64(1)},
	})
	b := ParamsHash(map[string]interface{}{
		"filters": map[string]interface{}{"chainId": int64(1), "mcp": true},
	})
	assert.Equal(t, a, b)
}

func TestKeyNamespacesAreDistinct(t *testing.T) {
	params := map[string]interface{}{"limit": 20}
	assert.NotEqual(t, KeyAgentsList(params), KeySearch(params))
	assert.NotEqual(t, KeySearch(params), KeyPaginationSet(params))
}

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "agents:detail:8453:42", KeyAgentDetail("8453:42"))
	assert.Equal(t, "classification:8453:42", KeyClassification("8453:42"))
	assert.Equal(t, "chains:stats", KeyChainStats())
	assert.Equal(t, "taxonomy:skills", KeyTaxonomy("skills"))
	assert.Equal(t, "mcp:session:abc", KeyMCPSession("abc"))
	assert.Equal(t, "ratelimit:search:key:1234", KeyRateLimit("key:1234", "search"))
}
