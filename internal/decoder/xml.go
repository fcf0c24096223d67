package decoder

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var (
	tagPatterns   = make(map[string]*regexp.Regexp)
	tagPatternsMu sync.RWMutex
)

// ExtractValue returns the trimmed text of the first <tag>...</tag> element in doc.
// Matching ignores case and any namespace prefix (<ns:tag>). ok is false when the tag is absent.
func ExtractValue(doc, tag string) (string, bool) {
	if doc == "" || tag == "" {
		return "", false
	}

	m := tagPattern(tag).FindStringSubmatch(doc)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// firstValue returns the first non-empty value among tags.
func firstValue(doc string, tags ...string) string {
	for _, tag := range tags {
		if v, ok := ExtractValue(doc, tag); ok && v != "" {
			return v
		}
	}
	return ""
}

func tagPattern(tag string) *regexp.Regexp {
	tagPatternsMu.RLock()
	re, ok := tagPatterns[tag]
	tagPatternsMu.RUnlock()
	if ok {
		return re
	}

	q := regexp.QuoteMeta(tag)
	re = regexp.MustCompile(fmt.Sprintf(`(?is)<(?:[^:>\s/]+:)?%s(?:\s+[^>]*)?>(.*?)</(?:[^:>\s/]+:)?%s>`, q, q))

	tagPatternsMu.Lock()
	tagPatterns[tag] = re
	tagPatternsMu.Unlock()
	return re
}
