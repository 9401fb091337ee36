// Package classifier decides whether an observed network exchange looks like
// a media resource.
package classifier

import (
	"regexp"
	"strings"

	"mediasniff/internal/domain"
)

// Audio-only and image formats are left out on purpose; they matched far too
// much non-video traffic.
var extensionPattern = regexp.MustCompile(
	`(?i)\.(m3u8|mpd|m3u|webm|mov|avi|m4v|ogv|asf|ts|divx|mpg|rm|wmv|m4s|m2ts|mts|f4v|3g2|mpeg|mkv|3gp|vid|flv|mp4)(\?|$)`,
)

// manifestTypes are content types used by HLS and DASH manifests.
var manifestTypes = []string{
	"application/x-mpegurl",
	"application/vnd.apple.mpegurl",
	"application/dash+xml",
}

// MatchesExtension reports whether url ends in a known media extension,
// optionally followed by a query string.
func MatchesExtension(url string) bool {
	if url == "" {
		return false
	}
	return extensionPattern.MatchString(url)
}

// MatchesContentType reports whether any Content-Type header marks the
// response as video or as a streaming manifest.
func MatchesContentType(headers []domain.Header) bool {
	for _, h := range headers {
		if !strings.EqualFold(h.Name, "content-type") {
			continue
		}
		if isMediaType(h.Value) {
			return true
		}
	}
	return false
}

// IsMedia is true when either the URL or the headers look like media.
func IsMedia(url string, headers []domain.Header) bool {
	return MatchesExtension(url) || MatchesContentType(headers)
}

func isMediaType(value string) bool {
	v := strings.ToLower(value)
	if strings.HasPrefix(v, "video/") {
		return true
	}
	for _, t := range manifestTypes {
		if strings.Contains(v, t) {
			return true
		}
	}
	return false
}
