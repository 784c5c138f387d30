package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agentindex/gateway/internal/apierror"
	"github.com/agentindex/gateway/internal/core"
	"github.com/agentindex/gateway/internal/search"
)

// parseListQuery builds a core.Query from GET /agents parameters.
func parseListQuery(r *http.Request) (core.Query, error) {
	q := r.URL.Query()
	out := core.Query{Text: strings.TrimSpace(q.Get("q"))}

	filters, err := parseFilters(q)
	if err != nil {
		return out, err
	}
	out.Filters = filters

	if out.MinScore, err = parseUnitFloat(q.Get("minScore"), "minScore"); err != nil {
		return out, err
	}

	out.Sort = q.Get("sort")
	switch out.Sort {
	case "", core.SortRelevance, core.SortName, core.SortCreatedAt, core.SortReputation:
	default:
		return out, apierror.Validation("sort must be one of relevance, name, createdAt, reputation")
	}
	out.Order = q.Get("order")
	switch out.Order {
	case "", "asc", "desc":
	default:
		return out, apierror.Validation("order must be asc or desc")
	}

	if err := parsePagination(&out, q); err != nil {
		return out, err
	}
	return out, nil
}

// searchRequest is the POST /search body.
type searchRequest struct {
	Query    string             `json:"query"`
	Filters  core.SearchFilters `json:"filters"`
	MinScore float64            `json:"minScore"`
	Limit    *int               `json:"limit"`
	Cursor   string             `json:"cursor"`
	Offset   int                `json:"offset"`
}

// parseSearchBody builds a core.Query from the POST /search body.
func parseSearchBody(r *http.Request) (core.Query, error) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return core.Query{}, apierror.BadRequest("request body is not valid JSON")
	}

	out := core.Query{
		Text:     strings.TrimSpace(req.Query),
		Filters:  req.Filters,
		MinScore: req.MinScore,
		Cursor:   req.Cursor,
		Offset:   req.Offset,
	}
	if out.MinScore < 0 || out.MinScore > 1 {
		return out, apierror.Validation("minScore must be between 0 and 1")
	}
	if err := validateFilters(&out.Filters); err != nil {
		return out, err
	}

	limit, err := search.ClampLimit(valueOrUnset(req.Limit))
	if err != nil {
		return out, err
	}
	out.Limit = limit
	return out, nil
}

func valueOrUnset(p *int) (int, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func parsePagination(out *core.Query, q url.Values) error {
	limit, set, err := intParam(q, "limit")
	if err != nil {
		return err
	}
	out.Limit, err = search.ClampLimit(limit, set)
	if err != nil {
		return err
	}

	offset, _, err := intParam(q, "offset")
	if err != nil {
		return err
	}
	if offset < 0 {
		return apierror.Validation("offset must be >= 0")
	}
	out.Offset = offset

	if page, set, err := intParam(q, "page"); err != nil {
		return err
	} else if set {
		out.Offset, err = search.PageToOffset(page, out.Limit)
		if err != nil {
			return err
		}
	}

	out.Cursor = q.Get("cursor")
	return nil
}

func parseFilters(q url.Values) (core.SearchFilters, error) {
	var f core.SearchFilters
	var err error

	if f.ChainIDs, err = parseChainIDs(q, "chainId", "chainIds"); err != nil {
		return f, err
	}
	if f.ExcludeChainIDs, err = parseChainIDs(q, "", "excludeChainIds"); err != nil {
		return f, err
	}

	for name, dst := range map[string]**bool{
		"active":              &f.Active,
		"mcp":                 &f.MCP,
		"a2a":                 &f.A2A,
		"x402":                &f.X402,
		"hasRegistrationFile": &f.HasRegistrationFile,
		"hasTrusts":           &f.HasTrusts,
	} {
		if *dst, err = boolParam(q, name); err != nil {
			return f, err
		}
	}

	f.Skills = csvParam(q, "skills")
	f.Domains = csvParam(q, "domains")
	f.MCPTools = csvParam(q, "mcpTools")
	f.A2ASkills = csvParam(q, "a2aSkills")
	f.ExcludeSkills = csvParam(q, "excludeSkills")
	f.ExcludeDomains = csvParam(q, "excludeDomains")
	f.TrustModels = csvParam(q, "trustModels")

	f.Owner = q.Get("owner")
	f.WalletAddress = q.Get("walletAddress")
	f.ENS = q.Get("ens")
	f.DID = q.Get("did")

	switch mode := q.Get("filterMode"); mode {
	case "":
	case "AND", "OR":
		f.FilterMode = core.FilterMode(mode)
	default:
		return f, apierror.Validation("filterMode must be AND or OR")
	}

	if f.MinRep, err = repParam(q, "minRep"); err != nil {
		return f, err
	}
	if f.MaxRep, err = repParam(q, "maxRep"); err != nil {
		return f, err
	}

	if f.CreatedAfter, err = timeParam(q, "createdAfter"); err != nil {
		return f, err
	}
	if f.CreatedBefore, err = timeParam(q, "createdBefore"); err != nil {
		return f, err
	}

	if err := validateFilters(&f); err != nil {
		return f, err
	}
	return f, nil
}

// validateFilters covers checks shared by the query-string and JSON paths.
func validateFilters(f *core.SearchFilters) error {
	for _, id := range f.ChainIDs {
		if !core.SupportedChainIDs[id] {
			return apierror.Validationf("unsupported chain id %d", id)
		}
	}
	for _, id := range f.ExcludeChainIDs {
		if !core.SupportedChainIDs[id] {
			return apierror.Validationf("unsupported chain id %d", id)
		}
	}
	if f.Owner != "" && !core.ValidWallet(f.Owner) {
		return apierror.Validation("owner must be a wallet address")
	}
	if f.WalletAddress != "" && !core.ValidWallet(f.WalletAddress) {
		return apierror.Validation("walletAddress must be a wallet address")
	}
	if f.MinRep != nil && (*f.MinRep < 0 || *f.MinRep > 100) {
		return apierror.Validation("minRep must be between 0 and 100")
	}
	if f.MaxRep != nil && (*f.MaxRep < 0 || *f.MaxRep > 100) {
		return apierror.Validation("maxRep must be between 0 and 100")
	}
	return nil
}

// --- primitive parsers ---

// csvParam accepts name, name[] repetition, and comma-separated values.
func csvParam(q url.Values, name string) []string {
	var raw []string
	raw = append(raw, q[name]...)
	raw = append(raw, q[name+"[]"]...)

	var out []string
	for _, chunk := range raw {
		for _, v := range strings.Split(chunk, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func parseChainIDs(q url.Values, singular, plural string) ([]int64, error) {
	var raw []string
	if singular != "" {
		raw = append(raw, csvParam(q, singular)...)
	}
	raw = append(raw, csvParam(q, plural)...)

	var out []int64
	for _, v := range raw {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, apierror.Validationf("invalid chain id %q", v)
		}
		out = append(out, id)
	}
	return out, nil
}

func boolParam(q url.Values, name string) (*bool, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, apierror.Validationf("%s must be true or false", name)
	}
	return &b, nil
}

func intParam(q url.Values, name string) (int, bool, error) {
	v := q.Get(name)
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, true, apierror.Validationf("%s must be an integer", name)
	}
	return n, true, nil
}

func repParam(q url.Values, name string) (*float64, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, apierror.Validationf("%s must be a number", name)
	}
	return &f, nil
}

func parseUnitFloat(v, name string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		return 0, apierror.Validationf("%s must be between 0 and 1", name)
	}
	return f, nil
}

func timeParam(q url.Values, name string) (*time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, apierror.Validationf("%s must be an RFC3339 timestamp", name)
	}
	return &t, nil
}
