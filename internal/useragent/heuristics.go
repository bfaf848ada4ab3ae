package useragent

import "strings"

// facts are the parser outputs the device-class heuristics look at.
type facts struct {
	ua      string
	browser string
	os      string
	osVer   string
	device  string
}

var (
	mobileDeviceFamilies = set(
		"iPhone", "iPod", "Generic Smartphone", "Generic Feature Phone",
		"PlayStation Vita", "iOS-Device",
	)
	tabletDeviceFamilies = set(
		"iPad", "BlackBerry Playbook", "Blackberry Playbook", "Kindle", "Kindle Fire",
		"Kindle Fire HD", "Galaxy Tab", "Xoom", "Dell Streak",
	)
	mobileOSFamilies = set(
		"Windows Phone", "Windows Phone OS", "Symbian OS", "Bada", "Windows CE",
		"Windows Mobile", "Maemo",
	)
	mobileBrowserFamilies = set(
		"IE Mobile", "Opera Mobile", "Opera Mini", "Chrome Mobile",
		"Chrome Mobile WebView", "Chrome Mobile iOS",
	)
	pcOSFamilies = set("Windows 95", "Windows 98", "Solaris")
)

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func in(m map[string]struct{}, v string) bool {
	_, ok := m[v]
	return ok
}

func (f facts) isBot() bool {
	return f.device == "Spider"
}

func (f facts) isTablet() bool {
	if in(tabletDeviceFamilies, f.device) {
		return true
	}
	if f.os == "Android" && !strings.Contains(f.ua, "Mobile") && f.browser != "Firefox Mobile" &&
		!strings.Contains(f.ua, "Opera Mobi") {
		return true
	}
	if strings.HasPrefix(f.os, "Windows") && strings.Contains(f.ua, "Touch") && strings.Contains(f.ua, "Tablet PC") {
		return true
	}
	return f.browser == "Amazon Silk"
}

func (f facts) isMobile() bool {
	switch {
	case f.isTablet():
		return false
	case in(mobileDeviceFamilies, f.device):
		return true
	case in(mobileBrowserFamilies, f.browser):
		return true
	case (f.os == "Android" || f.os == "Firefox OS") && f.browser != "Firefox Tablet":
		return true
	case f.os == "BlackBerry OS" && f.device != "Blackberry Playbook":
		return true
	case in(mobileOSFamilies, f.os):
		return true
	case strings.Contains(f.ua, "J2ME") || strings.Contains(f.ua, "MIDP"):
		return true
	case strings.Contains(f.ua, "iPhone;"), strings.Contains(f.ua, "Googlebot-Mobile"):
		return true
	case f.device == "Spider" && strings.Contains(f.browser, "Mobile"):
		return true
	case strings.Contains(f.ua, "NokiaBrowser") && strings.Contains(f.ua, "Mobile"):
		return true
	}
	return false
}

func (f facts) isPC() bool {
	switch {
	case strings.Contains(f.ua, "Windows NT"), in(pcOSFamilies, f.os):
		return true
	case f.os == "Windows" && f.osVer == "ME":
		return true
	case f.os == "Mac OS X" && !strings.Contains(f.ua, "Silk"):
		return true
	case strings.Contains(f.ua, "Maemo"):
		return false
	case strings.Contains(f.os, "Chrome OS"):
		return true
	case strings.Contains(f.ua, "Linux") && strings.Contains(f.ua, "X11"):
		return true
	}
	return false
}
