package bot

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"mediasniff/internal/domain"
)

// maxMessageLen stays below Telegram's 4096 character limit.
const maxMessageLen = 4000

const welcomeMessage = "Welcome to mediasniff! Send me a page URL and I'll watch it for video streams.\n\n" +
	"/tabs lists watched tabs\n" +
	"/links <tab> shows the media links found in a tab\n" +
	"/clear <tab> forgets them"

var errMissingTab = errors.New("missing tab id")

// parseTabArg reads the tab id following command, e.g. "/links 3".
func parseTabArg(text, command string) (domain.TabID, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), command))
	// Commands sent in groups may carry a bot suffix: /links@mybot 3
	if strings.HasPrefix(rest, "@") {
		if i := strings.IndexAny(rest, " \t"); i >= 0 {
			rest = strings.TrimSpace(rest[i:])
		} else {
			rest = ""
		}
	}
	if rest == "" {
		return domain.NoTab, errMissingTab
	}
	id, err := strconv.ParseInt(strings.Fields(rest)[0], 10, 64)
	if err != nil {
		return domain.NoTab, fmt.Errorf("invalid tab id: %w", err)
	}
	return domain.TabID(id), nil
}

// extractURL returns text as an http(s) URL when it is one.
func extractURL(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsAny(text, " \t\n") {
		return "", false
	}
	u, err := url.Parse(text)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}

func formatLinks(tabID domain.TabID, links []string) []string {
	if len(links) == 0 {
		return []string{"No video or audio links found yet. Browse or reload the page."}
	}
	header := fmt.Sprintf("Media links for tab %d:", tabID)
	return chunkLines(append([]string{header}, links...), maxMessageLen)
}

func formatTabs(tabs []domain.Tab) []string {
	if len(tabs) == 0 {
		return []string{"No tabs are being watched."}
	}
	lines := make([]string, 0, len(tabs)+1)
	lines = append(lines, "Watched tabs:")
	for _, t := range tabs {
		u := t.URL
		if u == "" {
			u = "(blank)"
		}
		lines = append(lines, fmt.Sprintf("%d  %s", t.ID, u))
	}
	return chunkLines(lines, maxMessageLen)
}

// chunkLines joins lines with newlines into messages no longer than limit.
// A single line over the limit is cut.
func chunkLines(lines []string, limit int) []string {
	var (
		out []string
		b   strings.Builder
	)
	for _, line := range lines {
		if len(line) > limit {
			line = line[:limit]
		}
		if b.Len() > 0 && b.Len()+1+len(line) > limit {
			out = append(out, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
