// Package style maps source labels to a display color and icon.
package style

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// FallbackIcon is shown for labels that match no known provider.
	FallbackIcon = "📅"
)

type provider struct {
	keywords []string
	color    string
	icon     string
}

// providers is checked in order; the first keyword contained in the label
// wins.
var providers = []provider{
	{keywords: []string{"gmail", "google"}, color: "#EA4335", icon: "📧"},
	{keywords: []string{"samsung"}, color: "#1428A0", icon: "📱"},
	{keywords: []string{"outlook"}, color: "#0078D4", icon: "📨"},
	{keywords: []string{"apple", "icloud"}, color: "#555555", icon: "🍎"},
}

// Style is the rendering hint for one source.
type Style struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

// Resolve returns the color and icon for label. It never fails.
func Resolve(label string) Style {
	return Style{Label: label, Color: Color(label), Icon: Icon(label)}
}

// Color returns a "#rrggbb" code. Known providers get their brand color;
// anything else gets the first six hex digits of the label's SHA-256, so a
// label renders the same everywhere without persisted assignments.
// Keyword matches ignore case but the hash does not, so "Work" and "work"
// fall back to different colors.
func Color(label string) string {
	if p, ok := match(label); ok {
		return p.color
	}
	sum := sha256.Sum256([]byte(label))
	return "#" + hex.EncodeToString(sum[:3])
}

func Icon(label string) string {
	if p, ok := match(label); ok {
		return p.icon
	}
	return FallbackIcon
}

// Legend resolves every label, preserving order.
func Legend(labels []string) []Style {
	out := make([]Style, 0, len(labels))
	for _, l := range labels {
		out = append(out, Resolve(l))
	}
	return out
}

func match(label string) (provider, bool) {
	lower := strings.ToLower(label)
	for _, p := range providers {
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				return p, true
			}
		}
	}
	return provider{}, false
}
