package notification

import (
	"strings"

	"github.com/mssola/useragent"
)

// DescribeDevice turns a User-Agent header into "Browser on OS".
func DescribeDevice(userAgent string) string {
	if userAgent == "" {
		return ""
	}

	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	os := ua.OS()

	if ua.Mobile() {
		if platform := ua.Platform(); platform != "" {
			os = platform
		}
	}
	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}
