package fingerprint

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/kraklabs/crawlcache-core/internal/metadata"
	"github.com/kraklabs/crawlcache-core/internal/sanitizer"
)

// noopSink is a package-private MetadataSink used only so the
// sanitizer's error path (which unconditionally calls the sink) never
// dereferences a nil interface; fingerprinting surfaces its own
// FingerprintError instead of going through the crawl metadata trail.
var noopSink = metadata.NewRecorder(nil)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	urlRe        = regexp.MustCompile(`https?://\S+`)
	dateRe       = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}/\d{2,4}\b`)
	digitRe      = regexp.MustCompile(`\d+`)
)

// ExtractText runs the teacher's sanitizer.HtmlSanitizer over the
// parsed document to get a structurally clean DOM, then pulls plain
// text out of it with goquery. Reusing the sanitizer keeps the same
// "normalize malformed markup, remove empty/duplicate nodes" behavior
// the teacher's markdown pipeline already relies on, instead of a
// second hand-rolled HTML cleaner.
func ExtractText(htmlBytes []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(htmlBytes))
	if err != nil {
		return "", err
	}

	s := sanitizer.NewHTMLSanitizer(noopSink)
	sanitized, cerr := s.Sanitize(doc)
	node := doc
	if cerr == nil && sanitized.GetContentNode() != nil {
		node = sanitized.GetContentNode()
	}

	gq := goquery.NewDocumentFromNode(node)
	return gq.Text(), nil
}

// NormalizeText implements spec.md §4.7's text normalization:
// lowercased, collapsed whitespace, URLs -> "URL", digits -> "NUM",
// dates -> "DATE". Order matters: dates are substituted before the
// generic digit substitution would otherwise consume them.
func NormalizeText(text string) string {
	normalized := strings.ToLower(text)
	normalized = urlRe.ReplaceAllString(normalized, "URL")
	normalized = dateRe.ReplaceAllString(normalized, "DATE")
	normalized = digitRe.ReplaceAllString(normalized, "NUM")
	normalized = whitespaceRe.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

func Tokenize(normalizedText string) []string {
	if normalizedText == "" {
		return nil
	}
	return strings.Fields(normalizedText)
}
