package foxy

import "strings"

// Link is a single HAL link object.
type Link struct {
	Href string `json:"href"`
}

// Links maps HAL relation names to link objects.
type Links map[string]Link

// Href returns the href for the given relation, or "" when absent.
func (l Links) Href(rel string) string {
	if l == nil {
		return ""
	}
	return l[rel].Href
}

// idFromHref extracts a resource id from the trailing path segment of a HAL
// self link, e.g. "https://api.foxycart.com/transactions/12345" -> "12345".
func idFromHref(href string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(href), "/")
	if trimmed == "" {
		return ""
	}
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
