// Package taxonomy holds the OASF skill and domain slug sets served on the
// taxonomy routes and MCP resources.
package taxonomy

// Skill slugs, grouped roughly by capability family.
var skills = []string{
	"natural-language-processing",
	"text-generation",
	"text-summarization",
	"translation",
	"sentiment-analysis",
	"question-answering",
	"code-generation",
	"code-review",
	"data-analysis",
	"data-extraction",
	"image-generation",
	"image-analysis",
	"audio-transcription",
	"speech-synthesis",
	"web-search",
	"web-scraping",
	"document-processing",
	"knowledge-retrieval",
	"task-planning",
	"workflow-orchestration",
	"smart-contract-analysis",
	"transaction-execution",
	"wallet-management",
	"price-feeds",
	"market-analysis",
	"payment-processing",
	"identity-verification",
	"content-moderation",
	"recommendation",
	"scheduling",
}

// Domain slugs.
var domains = []string{
	"finance",
	"defi",
	"trading",
	"gaming",
	"social",
	"productivity",
	"developer-tools",
	"research",
	"education",
	"healthcare",
	"legal",
	"marketing",
	"e-commerce",
	"media",
	"infrastructure",
	"security",
	"governance",
	"identity",
	"data",
	"entertainment",
}

// Skills returns the skill slug list. The caller must not mutate it.
func Skills() []string { return skills }

// Domains returns the domain slug list. The caller must not mutate it.
func Domains() []string { return domains }

// ValidSkill reports whether slug is in the taxonomy.
func ValidSkill(slug string) bool { return contains(skills, slug) }

// ValidDomain reports whether slug is in the taxonomy.
func ValidDomain(slug string) bool { return contains(domains, slug) }

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
