//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

package extract

import "strings"

// salvageJSON attempts a best-effort recovery of a JSON object from a body
// that is not strictly valid JSON: it strips surrounding markdown fences,
// locates the first balanced {...} span, and returns it. The caller retries
// parsing exactly once with the salvaged span before falling back.
func salvageJSON(body string) (string, bool) {
	s := strings.TrimSpace(body)
	for strings.HasPrefix(s, fence) {
		nl := strings.IndexByte(s, '\n')
		if nl < 0 {
			return "", false
		}
		s = s[nl+1:]
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), fence))
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
