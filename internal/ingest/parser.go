package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/lexfield/regscreen/internal/models"
)

// RegisterEntry is one document row of a register search results page
type RegisterEntry struct {
	ID      string // register identifier, e.g. uksi/2015/51
	Title   string
	Year    int
	DocType string // register document class, e.g. uksi, ukpga
	Href    string // path of the record detail page
}

// idPattern matches register document paths like /uksi/2015/51
var idPattern = regexp.MustCompile(`/(ukpga|ukla|uksi|asp|ssi|anaw|asc|mwa|nia|nisr)/(\d{4})/(\d+)`)

var (
	whitespacePattern  = regexp.MustCompile(`\s+`)
	partRevokedPattern = regexp.MustCompile(`(?i)\b(revoked|repealed)\s+in\s+part\b|\bpartially\s+(revoked|repealed)\b`)
	revokedPattern     = regexp.MustCompile(`(?i)\b(revoked|repealed)\b`)
	supersededPattern  = regexp.MustCompile(`(?i)\b(superseded|replaced)\s+by\b`)
	extentCodePattern  = regexp.MustCompile(`(?i)extent[:\s]+([EWSNI.+ ]+)`)

	registerDate          = `([0-9]{1,2}\s+[A-Za-z]+\s+[0-9]{4}|[0-9]{1,2}[./][0-9]{1,2}[./][0-9]{2,4}|[0-9]{4}-[0-9]{2}-[0-9]{2})`
	comingIntoForceRegexp = regexp.MustCompile(`(?i)(?:coming|came|comes)\s+into\s+force[^0-9]{0,40}` + registerDate)
	amendedDateRegexp     = regexp.MustCompile(`(?i)amended[^0-9]{0,40}` + registerDate)
)

// Parser extracts register entries and record details from register
// HTML. Register markup varies across document classes and page ages,
// so the parser works from selector lists with text-pattern fallbacks
// rather than one fixed document shape.
type Parser struct{}

// NewParser creates a new parser instance
func NewParser() *Parser {
	return &Parser{}
}

// ParseSearchResults extracts register entries from a search results
// page. Result rows link the same document from both the title and the
// citation columns, so entries are deduplicated by id, keeping the
// longest link text as the title.
func (p *Parser) ParseSearchResults(doc *goquery.Document) []RegisterEntry {
	index := make(map[string]int)
	var entries []RegisterEntry

	doc.Find("table a[href], .results a[href], li a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		m := idPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}

		id := strings.TrimPrefix(m[0], "/")
		title := collapseWhitespace(s.Text())
		if title == "" {
			return
		}

		if i, exists := index[id]; exists {
			if len(title) > len(entries[i].Title) {
				entries[i].Title = title
			}
			return
		}

		year, _ := strconv.Atoi(m[2])
		index[id] = len(entries)
		entries = append(entries, RegisterEntry{
			ID:      id,
			Title:   title,
			Year:    year,
			DocType: m[1],
			Href:    m[0],
		})
	})

	return entries
}

// NextPagePath returns the link to the next results page, if the page
// carries one.
func (p *Parser) NextPagePath(doc *goquery.Document) (string, bool) {
	var next string
	doc.Find("a[rel='next'], a.next, .pagination a:contains('Next')").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if href, ok := s.Attr("href"); ok && href != "" {
			next = href
			return false
		}
		return true
	})
	return next, next != ""
}

// ParseRecordPage extracts detail fields from a record page. Only
// fields the page actually yields appear in the returned map; the
// transformer fills register defaults for the rest.
func (p *Parser) ParseRecordPage(doc *goquery.Document) map[string]interface{} {
	data := make(map[string]interface{})
	allText := collapseWhitespace(doc.Find("body").Text())

	// Live status comes from revocation banners only. Matching the whole
	// body would flag records that merely discuss another revocation.
	statusSelectors := []string{
		"[class*='status']",
		"[class*='warning']",
		"[class*='banner']",
		"[class*='revocation']",
	}
	for _, selector := range statusSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if status, ok := statusFromText(s.Text()); ok {
				data["live_status"] = status
			}
		})
		if _, found := data["live_status"]; found {
			break
		}
	}

	var extent []models.Jurisdiction
	doc.Find("[class*='extent'], [class*='coverage']").Each(func(_ int, s *goquery.Selection) {
		if len(extent) == 0 {
			extent = ExtentFromText(s.Text())
		}
	})
	if len(extent) == 0 {
		// The labelled code form ("Extent: E+W+S") is safe to look for in
		// the whole body; bare jurisdiction names are not.
		if m := extentCodePattern.FindStringSubmatch(allText); m != nil {
			extent = extentFromCodes(m[1])
		}
	}
	if len(extent) > 0 {
		data["geo_extent"] = extent
	}

	if m := comingIntoForceRegexp.FindStringSubmatch(allText); m != nil {
		if date := p.parseDate(m[1]); date != nil {
			data["effective_from"] = date
		}
	}
	if date := p.latestDate(allText, amendedDateRegexp); date != nil {
		data["last_amended_at"] = date
	}

	// Amendment tables link the affecting and affected documents
	doc.Find("table, ul, ol").Each(func(_ int, s *goquery.Selection) {
		text := strings.ToLower(s.Text())
		switch {
		case strings.Contains(text, "amended by"):
			if ids := p.collectRecordIDs(s); len(ids) > 0 {
				data["amended_by"] = ids
			}
		case strings.Contains(text, "amends"):
			if ids := p.collectRecordIDs(s); len(ids) > 0 {
				data["amends"] = ids
			}
		}
	})

	var tags []string
	tagSeen := make(map[string]bool)
	doc.Find("[class*='subject'] a, [class*='keyword'] a, .tags a").Each(func(_ int, s *goquery.Selection) {
		tag := strings.ToLower(collapseWhitespace(s.Text()))
		if tag != "" && !tagSeen[tag] {
			tagSeen[tag] = true
			tags = append(tags, tag)
		}
	})
	if len(tags) > 0 {
		data["tags"] = tags
	}

	for _, selector := range []string{"[class*='summary']", "[class*='description']", "[class*='intro'] p"} {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := collapseWhitespace(s.Text())
			if len(text) > 40 {
				if current, _ := data["description"].(string); len(text) > len(current) {
					data["description"] = text
				}
			}
		})
	}

	return data
}

// statusFromText maps revocation language to a live status. Partial
// revocation is checked before full revocation because its phrasing
// contains the word "revoked".
func statusFromText(text string) (models.LiveStatus, bool) {
	switch {
	case partRevokedPattern.MatchString(text):
		return models.StatusPartiallyRevoked, true
	case supersededPattern.MatchString(text):
		return models.StatusSuperseded, true
	case revokedPattern.MatchString(text):
		return models.StatusRevoked, true
	}
	return "", false
}

// ExtentFromText resolves geographic extent markers in either register
// code form ("E+W+S+N.I.") or spelled-out jurisdiction names.
func ExtentFromText(text string) []models.Jurisdiction {
	if m := extentCodePattern.FindStringSubmatch(text); m != nil {
		if extent := extentFromCodes(m[1]); len(extent) > 0 {
			return extent
		}
	}

	var out []models.Jurisdiction
	lower := strings.ToLower(text)
	for _, phrase := range []string{
		"united kingdom",
		"great britain",
		"england and wales",
		"northern ireland",
		"england",
		"wales",
		"scotland",
	} {
		if strings.Contains(lower, phrase) {
			if j, ok := models.ParseJurisdiction(phrase); ok {
				out = append(out, j)
			}
			// Consume the match so "england and wales" does not also
			// yield "england" and "wales".
			lower = strings.ReplaceAll(lower, phrase, " ")
		}
	}
	return canonicalExtent(out)
}

// extentFromCodes parses the register's single-letter extent codes
func extentFromCodes(codes string) []models.Jurisdiction {
	seen := make(map[models.Jurisdiction]bool)
	var out []models.Jurisdiction
	add := func(j models.Jurisdiction) {
		if !seen[j] {
			seen[j] = true
			out = append(out, j)
		}
	}

	for _, code := range strings.FieldsFunc(codes, func(r rune) bool { return r == '+' || r == ' ' }) {
		switch strings.ToUpper(strings.Trim(code, ".")) {
		case "E":
			add(models.JurisdictionEngland)
		case "W":
			add(models.JurisdictionWales)
		case "S":
			add(models.JurisdictionScotland)
		case "N.I", "NI":
			add(models.JurisdictionNorthernIreland)
		}
	}
	return canonicalExtent(out)
}

// canonicalExtent collapses four-nation combinations into the composite
// jurisdictions the corpus uses.
func canonicalExtent(list []models.Jurisdiction) []models.Jurisdiction {
	seen := make(map[models.Jurisdiction]bool, len(list))
	for _, j := range list {
		seen[j] = true
	}
	e, w, s, ni := seen[models.JurisdictionEngland], seen[models.JurisdictionWales],
		seen[models.JurisdictionScotland], seen[models.JurisdictionNorthernIreland]

	switch {
	case len(list) == 4 && e && w && s && ni:
		return []models.Jurisdiction{models.JurisdictionUK}
	case len(list) == 3 && e && w && s:
		return []models.Jurisdiction{models.JurisdictionGreatBritain}
	case len(list) == 2 && e && w:
		return []models.Jurisdiction{models.JurisdictionEnglandWales}
	}
	return list
}

// collectRecordIDs gathers register identifiers linked from an element
func (p *Parser) collectRecordIDs(s *goquery.Selection) []string {
	seen := make(map[string]bool)
	var ids []string
	s.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		m := idPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id := strings.TrimPrefix(m[0], "/")
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	})
	return ids
}

// latestDate returns the most recent date matched by the pattern
func (p *Parser) latestDate(text string, pattern *regexp.Regexp) *time.Time {
	var latest *time.Time
	for _, m := range pattern.FindAllStringSubmatch(text, -1) {
		if date := p.parseDate(m[1]); date != nil {
			if latest == nil || date.After(*latest) {
				latest = date
			}
		}
	}
	return latest
}

// parseDate parses the date formats register pages actually use
func (p *Parser) parseDate(text string) *time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	formats := []string{
		"2 January 2006",
		"2 Jan 2006",
		"02/01/2006",
		"2/1/2006",
		"2.1.2006",
		"02.01.2006",
		"2006-01-02",
	}
	for _, format := range formats {
		if date, err := time.Parse(format, text); err == nil {
			return &date
		}
	}
	return nil
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}
