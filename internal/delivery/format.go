package delivery

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	imageSrcRe = regexp.MustCompile(`<img[^>]+src=["']([^"'>]+)["']`)
	// Han, kana and the katakana prolonged sound mark, which Unicode files
	// under the Common script.
	tagRunRe = regexp.MustCompile(`[\p{Han}\p{Hiragana}\p{Katakana}ー]+`)
)

// ExtractImages returns the src attribute of every <img> tag in s, in order.
func ExtractImages(s string) []string {
	matches := imageSrcRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		urls = append(urls, m[1])
	}
	return urls
}

// DeriveTags turns every maximal run of Han, Hiragana or Katakana characters
// in title into a hashtag. Tags keep their order of first appearance and are
// joined by single spaces. Titles without such runs yield "".
func DeriveTags(title string) string {
	runs := tagRunRe.FindAllString(title, -1)
	seen := make(map[string]bool, len(runs))
	tags := make([]string, 0, len(runs))
	for _, r := range runs {
		if seen[r] {
			continue
		}
		seen[r] = true
		tags = append(tags, "#"+r)
	}
	return strings.Join(tags, " ")
}

// FormatNotification builds the channel message for a published item.
func FormatNotification(title, link string) string {
	return fmt.Sprintf("%s\n\n%s\n%s", title, link, DeriveTags(title))
}
