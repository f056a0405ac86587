package guard

import (
	"path"
	"strings"

	"github.com/careportal/careportal/internal/roles"
)

// Class is the guard's view of a request path.
type Class int

const (
	// ClassAsset paths bypass the guard entirely.
	ClassAsset Class = iota
	// ClassPublic paths are reachable without signing in.
	ClassPublic
	// ClassProtected paths require a fresh authenticated session.
	ClassProtected
)

func (c Class) String() string {
	switch c {
	case ClassAsset:
		return "asset"
	case ClassPublic:
		return "public"
	default:
		return "protected"
	}
}

// ExcludedPrefixes is the edge matcher exclusion list: requests under these
// prefixes never reach page-level guard logic. Entries ending in "/" match by
// plain prefix; others match exactly or as a path-segment prefix. New asset
// routes must be added here, otherwise they are treated as protected pages.
// API routes are guarded separately by Guard.API.
var ExcludedPrefixes = []string{
	"/api/",
	"/static/",
	"/_image/",
	"/images/",
	"/favicon.ico",
	"/healthz",
	"/metrics",
}

// PublicPaths are served without authentication. "/" matches only itself.
var PublicPaths = []string{
	"/",
	"/login",
	"/register",
	"/forgot-password",
	"/reset-password",
	"/verify-email",
	"/terms",
	"/privacy",
	"/about",
}

var assetExtensions = map[string]struct{}{
	".css": {}, ".js": {}, ".mjs": {}, ".map": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".webp": {}, ".avif": {}, ".ico": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".otf": {},
	".txt": {}, ".xml": {}, ".webmanifest": {},
}

// Classify maps a request path onto its guard class.
func Classify(p string) Class {
	if p == "" {
		p = "/"
	}
	for _, prefix := range ExcludedPrefixes {
		if strings.HasSuffix(prefix, "/") {
			if strings.HasPrefix(p, prefix) || p == strings.TrimSuffix(prefix, "/") {
				return ClassAsset
			}
			continue
		}
		if roles.MatchPrefix(p, prefix) {
			return ClassAsset
		}
	}
	if _, ok := assetExtensions[strings.ToLower(path.Ext(p))]; ok {
		return ClassAsset
	}
	for _, public := range PublicPaths {
		if roles.MatchPrefix(p, public) {
			return ClassPublic
		}
	}
	return ClassProtected
}
