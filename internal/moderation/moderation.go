// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package moderation blocks denylisted content before it reaches the
// network or any stored state.
package moderation

import (
	"fmt"
	"strings"
)

// =============================================================================
// DENYLIST
// =============================================================================

// blockedTerms is the fixed content denylist: self-harm, violence, illegal
// activity, hate speech, and sexual-exploitation terms. Matching is
// case-insensitive substring containment.
//
// SECURITY: a matched message is never stored, never transmitted, and the
// check runs unconditionally on every send attempt including retries.
var blockedTerms = []string{
	// Self-harm
	"suicide", "self harm", "kill myself", "harm myself", "how to die",
	"end my life", "hurt myself", "cut myself", "overdose",
	"unalive", "kms", "kys", "end it all", "jump off", "take pills",
	"no reason to live", "can i die", "should i die", "want to die",
	"wish i was dead", "wish i could disappear", "erase myself",
	"erase my existence",

	// Violence
	"kill", "murder", "assault", "rape", "molest", "torture",
	"stab", "shoot", "lynch", "strangle", "choke", "drown",
	"bomb", "explode", "terrorist", "terrorism", "massacre", "genocide",

	// Illegal activity
	"make explosives", "build bomb", "how to hack", "create malware",
	"phishing", "sell drugs", "buy drugs", "illegal drugs", "smuggle",
	"trafficking", "money laundering", "blackmail", "extort",
	"how to make poison", "how to make drugs", "how to commit crime",
	"how to get away with murder", "how to stalk", "how to harass",
	"how to dox", "how to swat", "how to scam", "how to steal",
	"how to commit fraud", "how to counterfeit", "how to launder money",

	// Hate speech
	"hate speech", "nazi", "white power", "heil hitler", "kkk",
	"antisemitic", "islamophobic", "homophobic", "transphobic",

	// Sexual exploitation
	"child porn", "pedophile", "incest", "bestiality", "loli", "shota",
	"grooming", "rape fantasy", "roleplay rape", "roleplay abuse",
}

// supportNumbers maps region codes to crisis-support phone numbers.
var supportNumbers = map[string]string{
	"US": "988",
	"UK": "116 123",
	"CA": "1-833-456-4566",
	"AU": "13 11 14",
}

// defaultSupportNumber is used when the region is unknown.
const defaultSupportNumber = "988"

// =============================================================================
// CHECKS
// =============================================================================

// Blocked reports whether text contains a denylisted term.
func Blocked(text string) bool {
	lower := strings.ToLower(text)
	for _, term := range blockedTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// SupportNumber resolves a crisis-support number from a BCP 47 locale tag
// such as "en-US". A missing or unrecognized region falls back to the
// default number.
func SupportNumber(locale string) string {
	parts := strings.Split(locale, "-")
	if len(parts) < 2 {
		return defaultSupportNumber
	}
	if number, ok := supportNumbers[strings.ToUpper(parts[1])]; ok {
		return number
	}
	return defaultSupportNumber
}

// =============================================================================
// ERROR TYPE
// =============================================================================

// BlockedError signals that a message was rejected by the denylist. It
// carries the support number to surface; the offending text is
// deliberately not retained.
type BlockedError struct {
	SupportNumber string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("message blocked by content policy (support: %s)", e.SupportNumber)
}

// Check returns a BlockedError for denylisted text, nil otherwise.
func Check(text, locale string) error {
	if Blocked(text) {
		return &BlockedError{SupportNumber: SupportNumber(locale)}
	}
	return nil
}
