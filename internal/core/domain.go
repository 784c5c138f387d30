package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SupportedChainIDs is the closed set of chains the registry mirrors.
var SupportedChainIDs = map[int64]bool{
	1:        true, // Ethereum mainnet
	56:       true, // BSC
	137:      true, // Polygon
	143:      true,
	8453:     true, // Base
	97:       true, // BSC testnet
	10143:    true,
	11155111: true, // Sepolia
	84532:    true, // Base Sepolia
}

var (
	agentIDRe = regexp.MustCompile(`^\d+:\d+$`)
	walletRe  = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
)

// MaxTokenID bounds tokenId to the JS-safe integer range (2^53-1).
const MaxTokenID = int64(1)<<53 - 1

// AgentID is the composite registry key "chainId:tokenId".
type AgentID struct {
	ChainID int64
	TokenID string
}

// ParseAgentID validates and splits a "chainId:tokenId" identifier.
func ParseAgentID(s string) (AgentID, error) {
	if !agentIDRe.MatchString(s) {
		return AgentID{}, fmt.Errorf("invalid agent id %q: want chainId:tokenId", s)
	}
	parts := strings.SplitN(s, ":", 2)
	chainID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return AgentID{}, fmt.Errorf("invalid chain id %q: %w", parts[0], err)
	}
	if !SupportedChainIDs[chainID] {
		return AgentID{}, fmt.Errorf("unsupported chain id %d", chainID)
	}
	tokenID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || tokenID < 0 || tokenID > MaxTokenID {
		return AgentID{}, fmt.Errorf("token id %q out of range", parts[1])
	}
	return AgentID{ChainID: chainID, TokenID: parts[1]}, nil
}

func (id AgentID) String() string {
	return strconv.FormatInt(id.ChainID, 10) + ":" + id.TokenID
}

// ValidWallet reports whether s is a 20-byte hex address.
func ValidWallet(s string) bool { return walletRe.MatchString(s) }

// NormalizeWallet lowercases a wallet address for index lookups.
func NormalizeWallet(s string) string { return strings.ToLower(s) }

// TrustModel values an agent can declare support for.
const (
	TrustModelX402 = "x402"
	TrustModelEAS  = "eas"
)

// OASFSource tells how a classification was derived.
const (
	OASFSourceLLM      = "llm-classification"
	OASFSourceDeclared = "ipfs-declared"
	OASFSourceNone     = "none"
)

// ScoredSlug is one skill or domain with the classifier's confidence.
type ScoredSlug struct {
	Slug       string  `json:"slug"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// OASF is the classification block attached to an agent response.
type OASF struct {
	Skills       []ScoredSlug `json:"skills"`
	Domains      []ScoredSlug `json:"domains"`
	Confidence   float64      `json:"confidence"`
	ClassifiedAt time.Time    `json:"classifiedAt"`
	ModelVersion string       `json:"modelVersion,omitempty"`
}

// AgentSummary is the per-request response shape. Assembled, never persisted.
type AgentSummary struct {
	ID          string `json:"id"`
	ChainID     int64  `json:"chainId"`
	TokenID     string `json:"tokenId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`

	Active         bool     `json:"active"`
	HasMCP         bool     `json:"hasMcp"`
	HasA2A         bool     `json:"hasA2a"`
	X402Support    bool     `json:"x402Support"`
	SupportedTrust []string `json:"supportedTrust,omitempty"`

	Owner         string   `json:"owner,omitempty"`
	Operators     []string `json:"operators,omitempty"`
	ENS           string   `json:"ens,omitempty"`
	DID           string   `json:"did,omitempty"`
	WalletAddress string   `json:"walletAddress,omitempty"`

	OASF       *OASF  `json:"oasf,omitempty"`
	OASFSource string `json:"oasfSource"`

	SearchScore  *float64 `json:"searchScore,omitempty"`
	MatchReasons []string `json:"matchReasons"`

	ReputationScore *float64 `json:"reputationScore,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// AgentDetail is the full SDK record plus enrichment, returned on detail routes.
type AgentDetail struct {
	AgentSummary
	MetadataURI  string                 `json:"metadataUri,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	InputModes   []string               `json:"inputModes,omitempty"`
	OutputModes  []string               `json:"outputModes,omitempty"`
	MCPTools     []string               `json:"mcpTools,omitempty"`
	A2ASkills    []string               `json:"a2aSkills,omitempty"`
	Reputation   *Reputation            `json:"reputation,omitempty"`
	TrustScore   *TrustScore            `json:"trustScore,omitempty"`
	Endpoints    map[string]string      `json:"endpoints,omitempty"`
	RegisteredAt time.Time              `json:"registeredAt,omitempty"`
}

// Classification is the persisted record, one row per agent.
type Classification struct {
	AgentID      string       `json:"agentId"`
	Skills       []ScoredSlug `json:"skills"`
	Domains      []ScoredSlug `json:"domains"`
	Confidence   float64      `json:"confidence"`
	ModelVersion string       `json:"modelVersion"`
	ClassifiedAt time.Time    `json:"classifiedAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// OverallConfidence is the mean of per-item confidences rounded to 2 decimals.
func OverallConfidence(skills, domains []ScoredSlug) float64 {
	n := len(skills) + len(domains)
	if n == 0 {
		return 0
	}
	var sum float64
	for _, s := range skills {
		sum += s.Confidence
	}
	for _, d := range domains {
		sum += d.Confidence
	}
	return Round2(sum / float64(n))
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(f float64) float64 {
	if f < 0 {
		return float64(int64(f*100-0.5)) / 100
	}
	return float64(int64(f*100+0.5)) / 100
}

// Classification job statuses.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// ClassificationJob is a persisted queue entry; at most one active per agent.
type ClassificationJob struct {
	ID          string     `json:"id"`
	AgentID     string     `json:"agentId"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

// Feedback is append-only, scored 0-100.
type Feedback struct {
	ID          int64     `json:"id"`
	AgentID     string    `json:"agentId"`
	ChainID     int64     `json:"chainId"`
	Score       int       `json:"score"`
	Tags        []string  `json:"tags,omitempty"`
	Context     string    `json:"context,omitempty"`
	FeedbackURI string    `json:"feedbackUri,omitempty"`
	Submitter   string    `json:"submitter"`
	EASUID      string    `json:"easUid,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// AttestationScoreTo100 maps a 1-5 attestation rating onto the 0-100 scale.
func AttestationScoreTo100(rating int) int {
	switch rating {
	case 1:
		return 0
	case 2:
		return 25
	case 3:
		return 50
	case 4:
		return 75
	default:
		return 100
	}
}

// Reputation is the aggregated view, one row per agent.
type Reputation struct {
	AgentID          string    `json:"agentId"`
	FeedbackCount    int       `json:"feedbackCount"`
	AverageScore     float64   `json:"averageScore"`
	LowCount         int       `json:"lowCount"`
	MediumCount      int       `json:"mediumCount"`
	HighCount        int       `json:"highCount"`
	LastCalculatedAt time.Time `json:"lastCalculatedAt"`
}

// TrustEdge is one weighted wallet->agent edge of the trust graph.
type TrustEdge struct {
	FromWallet string  `json:"fromWallet"`
	ToAgentID  string  `json:"toAgentId"`
	Weight     float64 `json:"weight"`
	FeedbackID int64   `json:"feedbackId"`
}

// TrustScore is the persisted PageRank result for one agent.
type TrustScore struct {
	AgentID     string    `json:"agentId"`
	RawPagerank float64   `json:"rawPagerank"`
	TrustScore  float64   `json:"trustScore"`
	InDegree    int       `json:"inDegree"`
	Iteration   int       `json:"iteration"`
	ComputedAt  time.Time `json:"computedAt"`
}

// Validation is one on-chain validation attestation against an agent,
// served from the subgraph indexer.
type Validation struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agentId"`
	Validator   string    `json:"validator"`
	Response    int       `json:"response"` // 0-100
	Tag         string    `json:"tag,omitempty"`
	DataURI     string    `json:"dataUri,omitempty"`
	ValidatedAt time.Time `json:"validatedAt"`
}

// ValidationSummary aggregates an agent's validations.
type ValidationSummary struct {
	AgentID         string   `json:"agentId"`
	Count           int      `json:"count"`
	AverageResponse float64  `json:"averageResponse"`
	Validators      []string `json:"validators,omitempty"`
}

// ChainStat is one entry of the SDK's chain census.
type ChainStat struct {
	ChainID    int64  `json:"chainId"`
	Name       string `json:"name"`
	AgentCount int64  `json:"agentCount"`
	LastSynced string `json:"lastSynced,omitempty"`
}
