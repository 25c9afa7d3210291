// Package preprocess normalizes raw inbound email bodies into clean text for
// the candidate extractor. Cleaning is best-effort and total: it always
// returns a string (possibly empty) and never returns an error, because a
// mangled body should degrade extraction quality, not fail the pipeline.
//
// Cleaning is idempotent: running the cleaner on its own output changes
// nothing beyond trivial whitespace.
package preprocess

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	invisibleRe  = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{2060}-\x{2064}]+`)
	spaceRe      = regexp.MustCompile(`[^\S\n]+`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	tagRe        = regexp.MustCompile(`<[^>]+>`)

	// Markers that start a quoted-reply chain. Everything from the marker
	// line to the end of the body is dropped.
	replyMarkerRes = []*regexp.Regexp{
		regexp.MustCompile(`(?mi)^On .{1,200} wrote:\s*$`),
		regexp.MustCompile(`(?mi)^-{2,}\s*Original Message\s*-{2,}\s*$`),
		regexp.MustCompile(`(?mi)^-{2,}\s*Forwarded message\s*-{2,}\s*$`),
		regexp.MustCompile(`(?mi)^From:\s.+\n(Sent|Date):\s.+$`),
	}

	// Markers that start a signature block.
	signatureMarkerRes = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^--\s*$`),
		regexp.MustCompile(`(?mi)^Sent from my (iPhone|iPad|Android|Galaxy|mobile device).*$`),
	}
)

// Clean converts an email's plain and/or HTML body into normalized text.
// The plain body wins when both are present; the HTML body is stripped to
// text with goquery otherwise. Either input may be empty.
func Clean(plainBody, htmlBody string) string {
	text := plainBody
	if strings.TrimSpace(text) == "" {
		text = htmlToText(htmlBody)
	}
	if strings.TrimSpace(text) == "" {
		return ""
	}

	text = invisibleRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = stripQuotedReplies(text)
	text = stripSignature(text)
	return collapseWhitespace(text)
}

// htmlToText strips an HTML body down to its visible text. If the body does
// not parse, plain regex tag stripping is used instead so that malformed
// markup still yields something scannable.
func htmlToText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return tagRe.ReplaceAllString(html, " ")
	}

	doc.Find("script, style, head, meta, link, title").Remove()

	// Block elements become line breaks so "$89.45" and "due 03/15" on
	// adjacent table rows don't fuse into one token.
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr, td").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	return doc.Text()
}

// Links collects the href targets of anchor tags in an HTML body, in
// document order, deduplicated. Non-HTML or unparseable input yields nil.
func Links(htmlBody string) []string {
	if strings.TrimSpace(htmlBody) == "" {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return nil
	}

	var links []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "mailto:") {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		links = append(links, href)
	})
	return links
}

// stripQuotedReplies removes "> " quoted lines and cuts the body at the first
// reply-chain marker.
func stripQuotedReplies(text string) string {
	for _, re := range replyMarkerRes {
		if loc := re.FindStringIndex(text); loc != nil {
			text = text[:loc[0]]
		}
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// stripSignature cuts the body at the first signature marker.
func stripSignature(text string) string {
	for _, re := range signatureMarkerRes {
		if loc := re.FindStringIndex(text); loc != nil {
			text = text[:loc[0]]
		}
	}
	return text
}

func collapseWhitespace(text string) string {
	text = spaceRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
