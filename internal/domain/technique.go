// Package domain provides the core data model shared by the resolver,
// the strategies, and the fallback execution engine.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Technique identifies one crawling method.
type Technique string

// Known techniques. TechniqueAuto is a placeholder meaning "let the
// resolver decide"; it is never executed directly.
const (
	TechniqueAuto       Technique = "auto"
	TechniqueStatic     Technique = "static"
	TechniqueRendered   Technique = "rendered"
	TechniqueRSS        Technique = "rss"
	TechniqueSitemap    Technique = "sitemap"
	TechniqueAPI        Technique = "api"
	TechniqueMedium     Technique = "medium"
	TechniqueNaver      Technique = "naver"
	TechniqueNewsletter Technique = "newsletter"
)

// ErrUnknownTechnique is returned when a stored technique name does not
// match any known technique.
var ErrUnknownTechnique = errors.New("unknown technique")

// allTechniques is the closed set of executable techniques.
var allTechniques = map[Technique]bool{
	TechniqueStatic:     true,
	TechniqueRendered:   true,
	TechniqueRSS:        true,
	TechniqueSitemap:    true,
	TechniqueAPI:        true,
	TechniqueMedium:     true,
	TechniqueNaver:      true,
	TechniqueNewsletter: true,
}

// ParseTechnique validates a stored technique name. "auto" is accepted
// and returned as TechniqueAuto.
func ParseTechnique(s string) (Technique, error) {
	t := Technique(strings.ToLower(strings.TrimSpace(s)))
	if t == TechniqueAuto || allTechniques[t] {
		return t, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownTechnique, s)
}

// String returns the technique tag.
func (t Technique) String() string {
	return string(t)
}

// defaultFallbacks maps each technique to the chain tried after it fails.
// Order encodes observed reliability: DOM-based techniques degrade to the
// browser, structured techniques degrade to DOM scraping.
var defaultFallbacks = map[Technique][]Technique{
	TechniqueStatic:     {TechniqueRendered},
	TechniqueRendered:   {TechniqueStatic},
	TechniqueRSS:        {TechniqueStatic, TechniqueRendered},
	TechniqueSitemap:    {TechniqueStatic},
	TechniqueAPI:        {TechniqueRendered, TechniqueStatic},
	TechniqueMedium:     {TechniqueRSS, TechniqueStatic},
	TechniqueNaver:      {TechniqueRSS, TechniqueStatic},
	TechniqueNewsletter: {TechniqueStatic, TechniqueRendered},
}

// DefaultFallbacks returns the default fallback chain for a technique.
// The returned slice is a copy and never contains the technique itself.
func DefaultFallbacks(t Technique) []Technique {
	chain, ok := defaultFallbacks[t]
	if !ok {
		return nil
	}

	out := make([]Technique, len(chain))
	copy(out, chain)

	return out
}

// DedupeChain removes the primary technique and any repeats from a
// fallback chain, preserving order.
func DedupeChain(primary Technique, chain []Technique) []Technique {
	seen := map[Technique]bool{primary: true}
	out := make([]Technique, 0, len(chain))

	for _, t := range chain {
		if seen[t] {
			continue
		}

		seen[t] = true
		out = append(out, t)
	}

	return out
}
