package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/lexfield/regscreen/internal/models"
)

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("Failed to parse test HTML: %v", err)
	}
	return doc
}

func TestParser_ParseSearchResults(t *testing.T) {
	// Result rows link each document twice: once from the title, once
	// from the citation column.
	html := `
	<html><body>
	<table>
		<tr>
			<td><a href="/uksi/2015/51/contents/made">The Construction (Design and Management) Regulations 2015</a></td>
			<td><a href="/uksi/2015/51">2015 No. 51</a></td>
		</tr>
		<tr>
			<td><a href="/ukpga/2018/12/contents">Data Protection Act 2018</a></td>
			<td><a href="/ukpga/2018/12">2018 c. 12</a></td>
		</tr>
		<tr>
			<td><a href="/changes/affected">Changes to legislation</a></td>
		</tr>
	</table>
	</body></html>`

	parser := NewParser()
	entries := parser.ParseSearchResults(docFromHTML(t, html))

	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}

	first := entries[0]
	if first.ID != "uksi/2015/51" {
		t.Errorf("Expected id uksi/2015/51, got %s", first.ID)
	}
	// Deduplication keeps the longest link text as the title
	if first.Title != "The Construction (Design and Management) Regulations 2015" {
		t.Errorf("Expected full title, got %q", first.Title)
	}
	if first.Year != 2015 {
		t.Errorf("Expected year 2015, got %d", first.Year)
	}
	if first.DocType != "uksi" {
		t.Errorf("Expected doc type uksi, got %s", first.DocType)
	}
	if first.Href != "/uksi/2015/51" {
		t.Errorf("Expected href /uksi/2015/51, got %s", first.Href)
	}

	if entries[1].ID != "ukpga/2018/12" {
		t.Errorf("Expected id ukpga/2018/12, got %s", entries[1].ID)
	}
}

func TestParser_ParseSearchResults_NoEntries(t *testing.T) {
	html := `<html><body><p>No results matched your search.</p></body></html>`

	parser := NewParser()
	entries := parser.ParseSearchResults(docFromHTML(t, html))

	if len(entries) != 0 {
		t.Errorf("Expected no entries, got %d", len(entries))
	}
}

func TestParser_NextPagePath(t *testing.T) {
	parser := NewParser()

	withNext := docFromHTML(t, `<html><body>
		<div class="pagination"><a rel="next" href="/all?subject=employment&page=2">Next</a></div>
	</body></html>`)
	next, ok := parser.NextPagePath(withNext)
	if !ok {
		t.Fatal("Expected a next page link")
	}
	if next != "/all?subject=employment&page=2" {
		t.Errorf("Expected next page path, got %s", next)
	}

	lastPage := docFromHTML(t, `<html><body><div class="pagination">Page 3 of 3</div></body></html>`)
	if _, ok := parser.NextPagePath(lastPage); ok {
		t.Error("Expected no next page link on the last page")
	}
}

func TestParser_ParseRecordPage(t *testing.T) {
	html := `
	<html><body>
		<div class="status-warning">This Instrument has been revoked in part by later regulations.</div>
		<div class="extent-info">Extent: E+W+S</div>
		<p>These Regulations may be cited as the Test Regulations 2015, coming into force on 1 October 2015.</p>
		<div class="summary">These Regulations impose duties on clients, designers and contractors in relation to construction work and replace earlier provisions.</div>
		<table>
			<caption>Amended by</caption>
			<tr><td><a href="/uksi/2019/1342">The Amendment Regulations 2019</a></td></tr>
			<tr><td><a href="/uksi/2015/51">this instrument</a></td></tr>
		</table>
		<div class="subject-headings">
			<a href="/all?subject=construction">Construction</a>
			<a href="/all?subject=health+and+safety">Health and Safety</a>
			<a href="/all?subject=construction">Construction</a>
		</div>
	</body></html>`

	parser := NewParser()
	data := parser.ParseRecordPage(docFromHTML(t, html))

	if status, ok := data["live_status"].(models.LiveStatus); !ok || status != models.StatusPartiallyRevoked {
		t.Errorf("Expected partially-revoked status, got %v", data["live_status"])
	}

	extent, ok := data["geo_extent"].([]models.Jurisdiction)
	if !ok {
		t.Fatal("Expected geo_extent in record data")
	}
	if len(extent) != 1 || extent[0] != models.JurisdictionGreatBritain {
		t.Errorf("Expected E+W+S to collapse to Great Britain, got %v", extent)
	}

	from, ok := data["effective_from"].(*time.Time)
	if !ok {
		t.Fatal("Expected effective_from in record data")
	}
	if from.Year() != 2015 || from.Month() != time.October || from.Day() != 1 {
		t.Errorf("Expected 1 October 2015, got %v", from)
	}

	amendedBy, ok := data["amended_by"].([]string)
	if !ok {
		t.Fatal("Expected amended_by in record data")
	}
	found := false
	for _, id := range amendedBy {
		if id == "uksi/2019/1342" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected uksi/2019/1342 in amended_by, got %v", amendedBy)
	}

	tags, ok := data["tags"].([]string)
	if !ok {
		t.Fatal("Expected tags in record data")
	}
	if len(tags) != 2 {
		t.Errorf("Expected 2 deduplicated tags, got %v", tags)
	}

	description, ok := data["description"].(string)
	if !ok || !strings.Contains(description, "duties on clients") {
		t.Errorf("Expected summary text as description, got %q", description)
	}
}

func TestParser_ParseRecordPage_Minimal(t *testing.T) {
	html := `<html><body><h1>The Test Regulations 2020</h1><p>Made on some date.</p></body></html>`

	parser := NewParser()
	data := parser.ParseRecordPage(docFromHTML(t, html))

	// Nothing recognizable on the page: the transformer supplies the
	// register defaults instead.
	for _, key := range []string{"live_status", "geo_extent", "effective_from", "amended_by", "amends"} {
		if _, found := data[key]; found {
			t.Errorf("Expected no %s from a bare page, got %v", key, data[key])
		}
	}
}

func TestStatusFromText(t *testing.T) {
	testCases := []struct {
		text     string
		expected models.LiveStatus
		ok       bool
	}{
		{"This Instrument has been revoked in part", models.StatusPartiallyRevoked, true},
		{"Partially revoked by order", models.StatusPartiallyRevoked, true},
		{"This Act has been repealed", models.StatusRevoked, true},
		{"Revoked by S.I. 2020/100", models.StatusRevoked, true},
		{"Superseded by the 2021 Regulations", models.StatusSuperseded, true},
		{"In force from April", "", false},
	}

	for _, tc := range testCases {
		status, ok := statusFromText(tc.text)
		if ok != tc.ok {
			t.Errorf("statusFromText(%q) ok = %v, expected %v", tc.text, ok, tc.ok)
			continue
		}
		if ok && status != tc.expected {
			t.Errorf("statusFromText(%q) = %q, expected %q", tc.text, status, tc.expected)
		}
	}
}

func TestExtentFromText(t *testing.T) {
	testCases := []struct {
		text     string
		expected []models.Jurisdiction
	}{
		{"Extent: E+W+S+N.I.", []models.Jurisdiction{models.JurisdictionUK}},
		{"Extent: E+W+S", []models.Jurisdiction{models.JurisdictionGreatBritain}},
		{"Extent: E+W", []models.Jurisdiction{models.JurisdictionEnglandWales}},
		{"Extent: S", []models.Jurisdiction{models.JurisdictionScotland}},
		{"Applies to England and Wales", []models.Jurisdiction{models.JurisdictionEnglandWales}},
		{"This Act extends to the United Kingdom", []models.Jurisdiction{models.JurisdictionUK}},
		{"England, Wales and Scotland", []models.Jurisdiction{models.JurisdictionGreatBritain}},
		{"Applies in Northern Ireland only", []models.Jurisdiction{models.JurisdictionNorthernIreland}},
		{"No geographic information here", nil},
	}

	for _, tc := range testCases {
		result := ExtentFromText(tc.text)
		if len(result) != len(tc.expected) {
			t.Errorf("ExtentFromText(%q) = %v, expected %v", tc.text, result, tc.expected)
			continue
		}
		for i := range result {
			if result[i] != tc.expected[i] {
				t.Errorf("ExtentFromText(%q) = %v, expected %v", tc.text, result, tc.expected)
				break
			}
		}
	}
}

func TestExtentFromCodes(t *testing.T) {
	testCases := []struct {
		codes    string
		expected []models.Jurisdiction
	}{
		{"E+W+S+N.I.", []models.Jurisdiction{models.JurisdictionUK}},
		{"E+W", []models.Jurisdiction{models.JurisdictionEnglandWales}},
		{"E W S", []models.Jurisdiction{models.JurisdictionGreatBritain}},
		{"NI", []models.Jurisdiction{models.JurisdictionNorthernIreland}},
		{"X+Y", nil},
	}

	for _, tc := range testCases {
		result := extentFromCodes(tc.codes)
		if len(result) != len(tc.expected) {
			t.Errorf("extentFromCodes(%q) = %v, expected %v", tc.codes, result, tc.expected)
			continue
		}
		for i := range result {
			if result[i] != tc.expected[i] {
				t.Errorf("extentFromCodes(%q) = %v, expected %v", tc.codes, result, tc.expected)
				break
			}
		}
	}
}

func TestParser_ParseDate(t *testing.T) {
	parser := NewParser()

	testCases := []struct {
		text     string
		expected string
	}{
		{"1 October 2015", "2015-10-01"},
		{"21 Mar 2019", "2019-03-21"},
		{"06/04/2017", "2017-04-06"},
		{"2018-05-25", "2018-05-25"},
	}

	for _, tc := range testCases {
		date := parser.parseDate(tc.text)
		if date == nil {
			t.Errorf("parseDate(%q) returned nil", tc.text)
			continue
		}
		if got := date.Format("2006-01-02"); got != tc.expected {
			t.Errorf("parseDate(%q) = %s, expected %s", tc.text, got, tc.expected)
		}
	}

	if date := parser.parseDate("not a date"); date != nil {
		t.Errorf("Expected nil for unparseable date, got %v", date)
	}
}
