package useragent

import "strings"

// Browser families reported by DetectBrowser.
const (
	BrowserBrave            = "Brave"
	BrowserEdge             = "Edge"
	BrowserOpera            = "Opera"
	BrowserFirefox          = "Firefox"
	BrowserChrome           = "Chrome"
	BrowserSafari           = "Safari"
	BrowserInternetExplorer = "Internet Explorer"
	BrowserOther            = "Other Browser"
)

type browserRule struct {
	family string
	tokens []string
}

// Order matters: Chromium derivatives carry "chrome" and "safari" tokens too, so
// the specific families must be tested first.
var browserRules = []browserRule{
	{family: BrowserBrave, tokens: []string{"brave"}},
	{family: BrowserEdge, tokens: []string{"edg/", "edge"}},
	{family: BrowserOpera, tokens: []string{"opr/", "opera"}},
	{family: BrowserFirefox, tokens: []string{"firefox"}},
	{family: BrowserChrome, tokens: []string{"chrome"}},
	{family: BrowserSafari, tokens: []string{"safari"}},
	{family: BrowserInternetExplorer, tokens: []string{"msie", "trident"}},
}

// DetectBrowser returns the first browser family whose token occurs in ua,
// matching case-insensitively.
func DetectBrowser(ua string) string {
	lower := strings.ToLower(ua)
	for _, rule := range browserRules {
		for _, tok := range rule.tokens {
			if strings.Contains(lower, tok) {
				return rule.family
			}
		}
	}
	return BrowserOther
}
