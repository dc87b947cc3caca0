package redisstore

import "strings"

// DefaultKeyPrefix namespaces every key written by the store.
const DefaultKeyPrefix = "calmerge:"

// keys builds Redis key names under one prefix.
type keys struct {
	prefix string
}

func newKeys(prefix string) keys {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return keys{prefix: prefix}
}

// Sources is the set of all feed labels.
func (k keys) Sources() string { return k.prefix + "sources" }

// Source holds the raw bytes of one feed.
func (k keys) Source(label string) string { return k.prefix + "source:" + label }

// Merged holds the published merged calendar.
func (k keys) Merged() string { return k.prefix + "merged" }

// Staging is a unique scratch key renamed onto Merged.
func (k keys) Staging(id string) string { return k.prefix + "merged:staging:" + id }
