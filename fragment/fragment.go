// Package fragment composes independently cached pieces of content back
// into full documents. Templates mark insertion points as {{name}};
// fragments are cached under their own keys and invalidated through a tag
// index, so one slow-changing page can recombine fast-changing parts.
package fragment

import (
	"context"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{([A-Za-z0-9_.-]+)\}\}`)

// Compose substitutes every {{name}} occurrence in template with
// fragments[name]. Placeholders absent from the map are left untouched, so
// a partially composed template can be composed again once the missing
// fragments are available.
func Compose(template string, fragments map[string]string) string {
	if len(fragments) == 0 {
		return template
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[2 : len(match)-2]
		if val, ok := fragments[name]; ok {
			return val
		}
		return match
	})
}

// Placeholders returns the placeholder names in template, in order of
// first appearance, without duplicates.
func Placeholders(template string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}

// Resolver fetches one cached fragment by key. The bool reports whether
// the fragment was found.
type Resolver func(ctx context.Context, key string) (string, bool)

// ComposeByKeys resolves fragmentKeys through resolve and substitutes the
// fetched fragments into template. A fetched fragment is associated with a
// placeholder by matching the trailing segment of its key first, then by
// substring containment; the first match wins. Unresolved fragments leave
// their placeholder literal in the output.
func ComposeByKeys(ctx context.Context, template string, fragmentKeys []string, resolve Resolver) string {
	names := Placeholders(template)
	if len(names) == 0 {
		return template
	}
	unfilled := make(map[string]struct{}, len(names))
	for _, name := range names {
		unfilled[name] = struct{}{}
	}
	fragments := make(map[string]string, len(names))
	for _, key := range fragmentKeys {
		name, ok := matchPlaceholder(key, names, unfilled)
		if !ok {
			continue
		}
		val, found := resolve(ctx, key)
		if !found {
			continue
		}
		fragments[name] = val
		delete(unfilled, name)
	}
	return Compose(template, fragments)
}

// matchPlaceholder picks the placeholder a fragment key fills: exact match
// on the key's trailing segment, falling back to the first unfilled name
// contained in the key.
func matchPlaceholder(key string, names []string, unfilled map[string]struct{}) (string, bool) {
	trailing := key
	if idx := strings.LastIndex(key, ":"); idx >= 0 {
		trailing = key[idx+1:]
	}
	if _, ok := unfilled[trailing]; ok {
		return trailing, true
	}
	for _, name := range names {
		if _, ok := unfilled[name]; !ok {
			continue
		}
		if strings.Contains(key, name) {
			return name, true
		}
	}
	return "", false
}
