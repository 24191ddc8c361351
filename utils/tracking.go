package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"relaycrm/config"
)

// TrackingToken derives a deterministic token for an email log id so the
// open/click endpoints can verify that a tracking URL was issued by us.
func TrackingToken(logID string) string {
	mac := hmac.New(sha256.New, []byte(config.AppConfig.EncryptionKey))
	mac.Write([]byte(logID))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))[:20]
}

// ValidTrackingToken reports whether token belongs to logID.
func ValidTrackingToken(logID, token string) bool {
	return hmac.Equal([]byte(token), []byte(TrackingToken(logID)))
}

// OpenTrackingURL builds the tracking pixel URL for an email log
func OpenTrackingURL(baseURL, logID string) string {
	return fmt.Sprintf("%s/track/open/%s/%s", baseURL, logID, TrackingToken(logID))
}

// ClickTrackingURL builds a redirect URL that records the click and forwards
// to the original target
func ClickTrackingURL(baseURL, logID, originalURL string) string {
	return fmt.Sprintf("%s/track/click/%s/%s?url=%s",
		baseURL, logID, TrackingToken(logID), url.QueryEscape(originalURL))
}

// InjectTracking rewrites an HTML body so opens and clicks are observable:
// every anchor href is routed through the click-redirect endpoint and a
// one-pixel image referencing the log id is appended.
func InjectTracking(htmlContent, baseURL, logID string) string {
	pixel := fmt.Sprintf(`<img src="%s" alt="" width="1" height="1" style="display:none">`,
		OpenTrackingURL(baseURL, logID))

	return injectClickTracking(htmlContent, baseURL, logID) + pixel
}

func injectClickTracking(html, baseURL, logID string) string {
	const startTag = `<a href="`
	const endTag = `"`
	offset := 0

	for {
		startIdx := strings.Index(html[offset:], startTag)
		if startIdx == -1 {
			break
		}
		startIdx += offset + len(startTag)

		endIdx := strings.Index(html[startIdx:], endTag)
		if endIdx == -1 {
			break
		}
		endIdx += startIdx

		originalURL := html[startIdx:endIdx]
		trackedURL := ClickTrackingURL(baseURL, logID, originalURL)

		html = html[:startIdx] + trackedURL + html[endIdx:]
		offset = startIdx + len(trackedURL)
	}

	return html
}
