// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package router classifies outgoing messages and resolves the persona
// that should serve each request.
package router

import "strings"

// =============================================================================
// PERSONAS
// =============================================================================

// Persona identifies which engine serves a request.
type Persona string

const (
	PersonaAstra Persona = "astra" // general conversation
	PersonaVyra  Persona = "vyra"  // deep reasoning
	PersonaNova  Persona = "nova"  // image generation
	PersonaAuto  Persona = "auto"  // server picks
)

// Valid reports whether p is a known persona.
func (p Persona) Valid() bool {
	switch p {
	case PersonaAstra, PersonaVyra, PersonaNova, PersonaAuto:
		return true
	}
	return false
}

// =============================================================================
// INTENT CLASSIFICATION
// =============================================================================

// Intent is the result of classifying one outgoing message.
type Intent struct {
	// WantsImage means the text asks for image generation; the request is
	// forced onto the image persona for this call only.
	WantsImage bool

	// WantsSearch means the text references current events or lookups;
	// the web-search flag is passed upstream.
	WantsSearch bool
}

var imageKeywords = []string{
	"generate", "make", "create", "draw", "image", "picture", "photo",
}

var searchKeywords = []string{
	"search", "find", "current", "latest", "news", "today",
	"reddit", "twitter", "trending",
}

// Classify inspects message text for image and web-search intent.
// Matching is case-insensitive substring containment; overlaps are allowed,
// so a message can carry both intents.
func Classify(text string) Intent {
	q := strings.ToLower(text)
	var intent Intent
	for _, kw := range imageKeywords {
		if strings.Contains(q, kw) {
			intent.WantsImage = true
			break
		}
	}
	for _, kw := range searchKeywords {
		if strings.Contains(q, kw) {
			intent.WantsSearch = true
			break
		}
	}
	return intent
}

// Resolve picks the persona for a single request. Image intent overrides
// the user's selection for this call only; the selection itself is never
// mutated.
func Resolve(selected Persona, intent Intent) Persona {
	if intent.WantsImage {
		return PersonaNova
	}
	return selected
}
