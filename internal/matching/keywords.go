package matching

import (
	"regexp"
	"strings"

	"github.com/lexfield/regscreen/internal/models"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+(?:-[a-z0-9]+)*`)

// stopwords are dropped during keyword extraction: general English filler
// plus register boilerplate that appears in nearly every title.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"are": {}, "was": {}, "were": {}, "been": {}, "being": {}, "have": {},
	"has": {}, "had": {}, "not": {}, "its": {}, "their": {}, "them": {},
	"they": {}, "from": {}, "into": {}, "onto": {}, "under": {}, "over": {},
	"any": {}, "all": {}, "each": {}, "other": {}, "such": {}, "may": {},
	"must": {}, "shall": {}, "will": {}, "where": {}, "when": {}, "which": {},
	"who": {}, "whom": {}, "within": {}, "without": {}, "upon": {},
	"act": {}, "regulation": {}, "regulations": {}, "order": {},
	"amendment": {}, "provision": {}, "provisions": {}, "section": {},
	"schedule": {}, "relating": {}, "respect": {}, "purposes": {},
}

// extractKeywords tokenizes free text into a normalized keyword set.
// Lowercased, stopwords removed, tokens shorter than three characters
// dropped.
func extractKeywords(texts ...string) map[string]struct{} {
	keywords := make(map[string]struct{})
	for _, text := range texts {
		for _, token := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
			if len(token) < 3 {
				continue
			}
			if _, skip := stopwords[token]; skip {
				continue
			}
			keywords[token] = struct{}{}
		}
	}
	return keywords
}

// keywordOverlap computes the Jaccard similarity of two keyword sets,
// in [0,1]. Either side being empty scores zero.
func keywordOverlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	smaller, larger := a, b
	if len(b) < len(a) {
		smaller, larger = b, a
	}
	shared := 0
	for token := range smaller {
		if _, ok := larger[token]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}

// profileKeywords extracts keywords from an organization's declared
// activities.
func profileKeywords(p *models.OrganizationProfile) map[string]struct{} {
	return extractKeywords(p.Activities...)
}

// recordKeywords extracts keywords from a record's title, tags and
// descriptive text.
func recordKeywords(r *models.RegulationRecord) map[string]struct{} {
	texts := make([]string, 0, len(r.Tags)+2)
	texts = append(texts, r.Title, r.Description)
	texts = append(texts, r.Tags...)
	return extractKeywords(texts...)
}
