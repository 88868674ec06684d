package api

import (
	"net/url"
	"strings"
)

// NormalizeTags lowercases and trims tags, dropping empties and duplicates.
// Order is preserved.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		tag = strings.Trim(tag, ",#")
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// TagKey is the cache key for a tag set: normalized tags joined by comma.
func TagKey(tags []string) string {
	return strings.Join(NormalizeTags(tags), ",")
}

// SiteURL returns the public listing page for a tag on the Onit site.
// An empty tag returns the site root.
func SiteURL(site, tag string) string {
	if !strings.HasSuffix(site, "/") {
		site += "/"
	}
	if tag == "" {
		return site
	}
	return site + url.PathEscape(tag)
}
