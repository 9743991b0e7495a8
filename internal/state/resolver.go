package state

import (
	"net/url"
	"strings"
)

// Resolution is the heuristic reading of a URL/title pair.
type Resolution struct {
	Category Category `json:"category"`
	// Definitive is true when a URL path-shape rule matched. Title hints and
	// the catch-all never produce a definitive resolution.
	Definitive bool `json:"definitive"`
}

// reservedOwners are top-level routes on the host that look like /{owner}/{name}
// but never address a repository.
var reservedOwners = map[string]struct{}{
	"about": {}, "apps": {}, "codespaces": {}, "collections": {}, "enterprise": {},
	"explore": {}, "features": {}, "issues": {}, "login": {}, "marketplace": {},
	"new": {}, "notifications": {}, "orgs": {}, "pricing": {}, "pulls": {},
	"search": {}, "settings": {}, "sponsors": {}, "topics": {}, "trending": {},
}

// Resolver classifies pages on a single host by URL path shape.
type Resolver struct {
	host string
}

// NewResolver creates a resolver for host. An empty host defaults to github.com.
func NewResolver(host string) Resolver {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		host = "github.com"
	}
	return Resolver{host: host}
}

// Classify maps a URL and page title to a category. It is pure: it performs
// no I/O and returns the same result for the same input.
func (r Resolver) Classify(rawURL, title string) Resolution {
	if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil && r.onHost(u.Host) {
		if c, ok := classifyPath(u.Path); ok {
			return Resolution{Category: c, Definitive: true}
		}
	}
	return Resolution{Category: classifyTitle(title), Definitive: false}
}

func (r Resolver) onHost(host string) bool {
	host = strings.ToLower(host)
	if i := strings.LastIndex(host, ":"); i != -1 {
		host = host[:i]
	}
	return host == r.host || host == "www."+r.host
}

// classifyPath applies the path rules most specific first.
func classifyPath(path string) (Category, bool) {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	switch {
	case len(segments) >= 1 && segments[0] == "search":
		return SearchResults, true
	case len(segments) >= 3 && isOwner(segments[0]) && segments[2] == "releases":
		return TargetSection, true
	case len(segments) >= 2 && isOwner(segments[0]):
		return TargetEntity, true
	case len(segments) == 0:
		return Home, true
	}
	return Unknown, false
}

func isOwner(segment string) bool {
	_, reserved := reservedOwners[strings.ToLower(segment)]
	return !reserved
}

func classifyTitle(title string) Category {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "search results") || strings.HasPrefix(t, "search ·"):
		return SearchResults
	case strings.Contains(t, "releases"):
		return TargetSection
	case strings.Contains(t, "github"):
		return Home
	}
	return Unknown
}
