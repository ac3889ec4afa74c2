//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

package chat

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultTitle is used when no user content is available to derive from.
	DefaultTitle = "New Chat"

	maxTitleRunes      = 50
	truncatedTitlePart = 47
	ellipsis           = "…"
)

// DeriveTitle derives a chat title from the first user message: the first
// sentence when it is short enough, otherwise the leading characters
// trimmed and ellipsized. The first rune is always capitalized.
func DeriveTitle(content string) string {
	t := strings.TrimSpace(content)
	if t == "" {
		return DefaultTitle
	}
	// Only the first line is considered.
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = strings.TrimSpace(t[:i])
		if t == "" {
			return DefaultTitle
		}
	}

	if s := firstSentence(t); s != "" && utf8.RuneCountInString(s) <= maxTitleRunes {
		t = s
	} else if utf8.RuneCountInString(t) > maxTitleRunes {
		runes := []rune(t)
		t = strings.TrimSpace(string(runes[:truncatedTitlePart])) + ellipsis
	}
	return capitalize(t)
}

// firstSentence returns the leading sentence including its terminator, or
// "" when no terminator is found.
func firstSentence(s string) string {
	for i, r := range s {
		if r != '.' && r != '?' && r != '!' {
			continue
		}
		// Treat a terminator mid-word (e.g. "3.5") as part of the word.
		rest := s[i+utf8.RuneLen(r):]
		if rest == "" || strings.HasPrefix(rest, " ") || strings.HasPrefix(rest, "\t") {
			return s[:i+utf8.RuneLen(r)]
		}
	}
	return ""
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
