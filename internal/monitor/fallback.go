package monitor

import (
	"fmt"

	"github.com/nijenhuis/api-guard/internal/models"
)

const (
	defaultLanguage = "nl"
	defaultKind     = "error"
)

// FallbackCatalog maps (language, response kind) to literal text served
// in place of normal processing when the system is unhealthy. Read-only
// at runtime.
type FallbackCatalog map[string]map[string]string

// DefaultFallbacks returns the built-in catalog
func DefaultFallbacks() FallbackCatalog {
	return FallbackCatalog{
		"nl": {
			"greeting": "Hallo! Ik ben tijdelijk niet beschikbaar. Bel direct: 0522 281 528",
			"error":    "Technische storing. Bel direct: 0522 281 528",
			"offline":  "Onze chatbot is tijdelijk offline. Bel direct: 0522 281 528",
		},
		"en": {
			"greeting": "Hello! I am temporarily unavailable. Call directly: 0522 281 528",
			"error":    "Technical issue. Call directly: 0522 281 528",
			"offline":  "Our chatbot is temporarily offline. Call directly: 0522 281 528",
		},
		"de": {
			"greeting": "Hallo! Ich bin vorübergehend nicht verfügbar. Rufen Sie direkt an: 0522 281 528",
			"error":    "Technisches Problem. Rufen Sie direkt an: 0522 281 528",
			"offline":  "Unser Chatbot ist vorübergehend offline. Rufen Sie direkt an: 0522 281 528",
		},
	}
}

// Lookup resolves (language, kind), falling back to the default language
// and then the default kind. The result is always non-empty.
func (c FallbackCatalog) Lookup(language, kind string) string {
	byKind, ok := c[language]
	if !ok {
		byKind = c[defaultLanguage]
	}
	if text, ok := byKind[kind]; ok && text != "" {
		return text
	}
	if text, ok := byKind[defaultKind]; ok && text != "" {
		return text
	}
	if text, ok := c[defaultLanguage][defaultKind]; ok && text != "" {
		return text
	}
	return "Service temporarily unavailable"
}

func formatSummary(label string, metrics models.ConnectionMetrics) string {
	return fmt.Sprintf("%s (Response time: %.0fms)", label, metrics.ResponseTimeMs)
}

func formatFailures(label string, metrics models.ConnectionMetrics) string {
	return fmt.Sprintf("%s (%d consecutive failures)", label, metrics.ConsecutiveFailures)
}
