// Package useragent classifies raw user-agent strings into browser, OS, device
// and bot attributes.
package useragent

import (
	"strings"

	"github.com/ua-parser/uap-go/uaparser"
	"go.uber.org/zap"

	"github.com/JakeFAU/weblog-normalizer/internal/weblog"
)

const otherFamily = "Other"

// Parser is the subset of the ua-parser client used by the classifier.
type Parser interface {
	Parse(line string) *uaparser.Client
}

// Classifier derives a weblog.Classification from a user-agent string. It is
// safe for concurrent use.
type Classifier struct {
	parser Parser
	logger *zap.Logger
}

// New builds a Classifier backed by the ua-parser regex set embedded in uap-go.
func New(logger *zap.Logger) *Classifier {
	return NewWithParser(uaparser.NewFromSaved(), logger)
}

// NewWithParser builds a Classifier around a custom parser.
func NewWithParser(parser Parser, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{parser: parser, logger: logger}
}

// Classify never fails: empty input yields weblog.UnknownClassification and a
// parser failure yields a degraded classification that still carries the
// browser family from the token rules.
func (c *Classifier) Classify(raw string) weblog.Classification {
	ua := strings.ReplaceAll(raw, "+", " ")
	if strings.TrimSpace(ua) == "" {
		return weblog.UnknownClassification()
	}
	client, ok := c.parse(ua)
	if !ok {
		degraded := weblog.UnknownClassification()
		degraded.Browser = DetectBrowser(ua)
		return degraded
	}
	return classify(ua, client)
}

func (c *Classifier) parse(ua string) (client *uaparser.Client, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("user agent parser panicked", zap.Any("panic", r), zap.Int("ua_len", len(ua)))
			client, ok = nil, false
		}
	}()
	if c.parser == nil {
		return nil, false
	}
	client = c.parser.Parse(ua)
	if client == nil || client.UserAgent == nil || client.Os == nil || client.Device == nil {
		return nil, false
	}
	return client, true
}

func classify(ua string, client *uaparser.Client) weblog.Classification {
	device := client.Device.Family
	if device == "" || device == otherFamily {
		device = weblog.Unknown
	}
	osFamily := client.Os.Family
	if osFamily == "" {
		osFamily = weblog.Unknown
	}
	f := facts{
		ua:      ua,
		browser: client.UserAgent.Family,
		os:      client.Os.Family,
		osVer:   joinVersion(client.Os.Major, client.Os.Minor, client.Os.Patch, client.Os.PatchMinor),
		device:  client.Device.Family,
	}
	return weblog.Classification{
		Browser:        DetectBrowser(ua),
		BrowserVersion: joinVersion(client.UserAgent.Major, client.UserAgent.Minor, client.UserAgent.Patch),
		OSFamily:       osFamily,
		OSVersion:      f.osVer,
		Device:         device,
		IsMobile:       f.isMobile(),
		IsPC:           f.isPC(),
		IsBot:          f.isBot(),
	}
}

func joinVersion(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			break
		}
		out = append(out, p)
	}
	return strings.Join(out, ".")
}
