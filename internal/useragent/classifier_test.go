package useragent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ua-parser/uap-go/uaparser"

	"github.com/JakeFAU/weblog-normalizer/internal/weblog"
)

type stubParser struct {
	client *uaparser.Client
	panics bool
	seen   []string
}

func (s *stubParser) Parse(line string) *uaparser.Client {
	s.seen = append(s.seen, line)
	if s.panics {
		panic("regex explosion")
	}
	return s.client
}

func client(browser, major, osFamily, osMajor, device string) *uaparser.Client {
	return &uaparser.Client{
		UserAgent: &uaparser.UserAgent{Family: browser, Major: major},
		Os:        &uaparser.Os{Family: osFamily, Major: osMajor},
		Device:    &uaparser.Device{Family: device},
	}
}

func TestDetectBrowserPriority(t *testing.T) {
	t.Parallel()

	cases := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 ... OPR/50.0 Chrome/80", BrowserOpera},
		{"Mozilla/5.0 (Windows NT 10.0) Chrome/100 Safari/537.36 Edg/100.0", BrowserEdge},
		{"Mozilla/5.0 Brave Chrome/99 Safari/537.36", BrowserBrave},
		{"Mozilla/5.0 (X11; Linux) Gecko/20100101 Firefox/115.0", BrowserFirefox},
		{"Mozilla/5.0 (Windows NT 10.0) Chrome/100 Safari/537.36", BrowserChrome},
		{"Mozilla/5.0 (Macintosh) Version/17.0 Safari/605.1.15", BrowserSafari},
		{"Mozilla/4.0 (compatible; MSIE 8.0; Windows NT 6.1; Trident/4.0)", BrowserInternetExplorer},
		{"MOZILLA/5.0 CHROME/100", BrowserChrome},
		{"curl/7.0", BrowserOther},
		{"", BrowserOther},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectBrowser(tc.ua), tc.ua)
	}
}

func TestClassifyEmptyIsUnknown(t *testing.T) {
	t.Parallel()

	stub := &stubParser{}
	c := NewWithParser(stub, nil)

	for _, ua := range []string{"", "   ", "+++"} {
		got := c.Classify(ua)
		assert.Equal(t, weblog.UnknownClassification(), got, "%q", ua)
	}
	assert.Empty(t, stub.seen, "empty agents must not reach the parser")
}

func TestClassifyReplacesPlusBeforeMatching(t *testing.T) {
	t.Parallel()

	stub := &stubParser{client: client("Opera", "50", "Windows", "10", "Other")}
	c := NewWithParser(stub, nil)

	got := c.Classify("Mozilla/5.0+(Windows+NT+10.0)+OPR/50.0+Chrome/80")
	require.Len(t, stub.seen, 1)
	assert.Equal(t, "Mozilla/5.0 (Windows NT 10.0) OPR/50.0 Chrome/80", stub.seen[0])
	assert.Equal(t, BrowserOpera, got.Browser)
	assert.Equal(t, "50", got.BrowserVersion)
	assert.Equal(t, weblog.Unknown, got.Device, "Other device must be rewritten")
	assert.True(t, got.IsPC)
	assert.False(t, got.IsBot)
}

func TestClassifyRecoversFromParserPanic(t *testing.T) {
	t.Parallel()

	c := NewWithParser(&stubParser{panics: true}, nil)
	got := c.Classify("Mozilla/5.0 Firefox/115.0")

	assert.Equal(t, BrowserFirefox, got.Browser)
	assert.Equal(t, weblog.Unknown, got.OSFamily)
	assert.Equal(t, weblog.Unknown, got.Device)
	assert.False(t, got.IsBot)
}

func TestClassifyNilParserResultDegrades(t *testing.T) {
	t.Parallel()

	c := NewWithParser(&stubParser{client: &uaparser.Client{}}, nil)
	got := c.Classify("something odd")
	assert.Equal(t, BrowserOther, got.Browser)
	assert.Equal(t, weblog.Unknown, got.Device)
}

func TestDeviceClassHeuristics(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		ua     string
		client *uaparser.Client
		mobile bool
		pc     bool
		bot    bool
	}{
		{"spider", "Googlebot/2.1", client("Googlebot", "2", "Other", "", "Spider"), false, false, true},
		{"iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0)", client("Mobile Safari", "17", "iOS", "17", "iPhone"), true, false, false},
		{"ipad is tablet", "Mozilla/5.0 (iPad; CPU OS 17_0)", client("Mobile Safari", "17", "iOS", "17", "iPad"), false, false, false},
		{"android phone", "Mozilla/5.0 (Linux; Android 14) Mobile", client("Chrome Mobile", "120", "Android", "14", "Pixel 8"), true, false, false},
		{"android tablet", "Mozilla/5.0 (Linux; Android 14)", client("Chrome", "120", "Android", "14", "SM-X710"), false, false, false},
		{"mac", "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0)", client("Safari", "17", "Mac OS X", "14", "Mac"), false, true, false},
		{"x11 linux", "Mozilla/5.0 (X11; Linux x86_64)", client("Firefox", "115", "Linux", "", "Other"), false, true, false},
		{"j2me", "Nokia6300/2.0 Profile/MIDP-2.0", client("Nokia", "", "Other", "", "Nokia 6300"), true, false, false},
		{"curl", "curl/7.0", client("curl", "7", "Other", "", "Other"), false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := NewWithParser(&stubParser{client: tc.client}, nil).Classify(tc.ua)
			assert.Equal(t, tc.mobile, got.IsMobile, "mobile")
			assert.Equal(t, tc.pc, got.IsPC, "pc")
			assert.Equal(t, tc.bot, got.IsBot, "bot")
		})
	}
}

func TestClassifyWithEmbeddedRegexes(t *testing.T) {
	t.Parallel()

	c := New(nil)

	chrome := c.Classify("Mozilla/5.0 (Windows NT 10.0) Chrome/100 Safari/537.36")
	assert.Equal(t, BrowserChrome, chrome.Browser)
	assert.Equal(t, "Windows", chrome.OSFamily)
	assert.Equal(t, weblog.Unknown, chrome.Device)
	assert.True(t, chrome.IsPC)
	assert.False(t, chrome.IsBot)

	bot := c.Classify("Googlebot/2.1 (+http://www.google.com/bot.html)")
	assert.True(t, bot.IsBot)
	assert.Equal(t, "Spider", bot.Device)
}

func TestClassifyIsTotalOnGarbage(t *testing.T) {
	t.Parallel()

	c := New(nil)
	inputs := []string{
		"\x00\x01\x02",
		"ünïcödé/1.0 (ß; ∂)",
		strings.Repeat("(", 2048),
		"\xff\xfe\xfd",
		"Mozilla/5.0 (",
	}
	for _, in := range inputs {
		got := c.Classify(in)
		assert.NotEmpty(t, got.Browser)
		assert.NotEmpty(t, got.OSFamily)
		assert.NotEmpty(t, got.Device)
	}
}
