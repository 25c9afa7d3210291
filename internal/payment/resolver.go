// Package payment validates candidate payment links and falls back to a
// static table of known vendor payment portals when an email carries no
// usable link of its own.
package payment

import (
	"net/url"
	"strings"
)

// vendorPortals maps normalized vendor names to their public payment pages.
// Keys are lowercased with spaces and punctuation stripped so "AT&T",
// "at&t" and "ATT" all resolve the same way.
var vendorPortals = map[string]string{
	"comcast":          "https://customer.xfinity.com/billing",
	"xfinity":          "https://customer.xfinity.com/billing",
	"verizon":          "https://www.verizon.com/my-verizon/bill",
	"att":              "https://www.att.com/my/#/pay",
	"tmobile":          "https://www.t-mobile.com/account/pay-bill",
	"spectrum":         "https://www.spectrum.net/paybill",
	"cox":              "https://www.cox.com/myprofile/pay-bill.html",
	"pge":              "https://www.pge.com/payment",
	"conedison":        "https://www.coned.com/en/accounts-billing/payment",
	"dukeenergy":       "https://www.duke-energy.com/my-account/billing",
	"nationalgrid":     "https://www.nationalgridus.com/billing",
	"netflix":          "https://www.netflix.com/youraccount",
	"spotify":          "https://www.spotify.com/account/subscription",
	"hulu":             "https://secure.hulu.com/account",
	"geico":            "https://www.geico.com/pay-my-bill",
	"progressive":      "https://www.progressive.com/manage-policy/payments",
	"statefarm":        "https://www.statefarm.com/customer-care/pay-a-bill",
	"allstate":         "https://www.allstate.com/mya/pay-bill",
	"chase":            "https://www.chase.com/personal/credit-cards/payments",
	"capitalone":       "https://www.capitalone.com/pay-bill",
	"discover":         "https://www.discover.com/credit-cards/member-benefits/pay-bill",
	"americanexpress":  "https://www.americanexpress.com/en-us/account/payments",
	"amex":             "https://www.americanexpress.com/en-us/account/payments",
	"bankofamerica":    "https://www.bankofamerica.com/credit-cards/pay-bill",
	"wellsfargo":       "https://www.wellsfargo.com/credit-cards/payments",
	"citi":             "https://online.citi.com/US/ag/payments",
	"nationwide":       "https://www.nationwide.com/personal/pay-bill",
	"libertymutual":    "https://www.libertymutual.com/customer-support/pay-my-bill",
}

// URL path/query fragments that mark a link as tracking or list-management
// plumbing rather than a place to pay.
var junkLinkFragments = []string{
	"unsubscribe", "opt-out", "optout", "list-manage", "email-preferences",
	"pixel", "beacon", "track/open", "open.aspx", "click.", "mailtrack",
	"utm_source=unsub",
}

// Image extensions that indicate a tracking pixel.
var pixelExtensions = []string{".gif", ".png", ".jpg", ".jpeg", ".bmp"}

// IsValidPaymentURL reports whether a candidate link is a plausible payment
// destination: well-formed, https, a real host, and not tracking or
// unsubscribe plumbing.
func IsValidPaymentURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "https" || u.Host == "" {
		return false
	}

	lower := strings.ToLower(u.String())
	for _, frag := range junkLinkFragments {
		if strings.Contains(lower, frag) {
			return false
		}
	}

	lowerPath := strings.ToLower(u.Path)
	for _, ext := range pixelExtensions {
		if strings.HasSuffix(lowerPath, ext) {
			return false
		}
	}
	return true
}

// FallbackPaymentURL returns the known payment portal for a vendor name, or
// "" when the vendor is not in the table. Matching is case-insensitive and
// ignores spaces and punctuation.
func FallbackPaymentURL(vendorName string) string {
	key := normalizeVendor(vendorName)
	if key == "" {
		return ""
	}
	return vendorPortals[key]
}

// Resolve picks the payment URL for an extraction: the first valid candidate
// link wins, then the vendor fallback, then nothing. The returned confidence
// distinguishes a link seen in the email (0.9) from a table lookup (0.6).
func Resolve(candidateLinks []string, vendorName string) (url string, confidence float64) {
	for _, link := range candidateLinks {
		if IsValidPaymentURL(link) {
			return link, 0.9
		}
	}
	if fallback := FallbackPaymentURL(vendorName); fallback != "" {
		return fallback, 0.6
	}
	return "", 0
}

func normalizeVendor(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
