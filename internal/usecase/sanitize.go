package usecase

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	invalidNameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	multiDash        = regexp.MustCompile(`[-_]{2,}`)
)

const maxOriginalNameLen = 200

// sanitizeFilename reduces a client supplied name to a safe display name.
// Directory components are dropped and the result is NFC normalized.
func sanitizeFilename(name string) string {
	name = norm.NFC.String(strings.ReplaceAll(name, `\`, "/"))
	s := strings.TrimSpace(filepath.Base(strings.TrimSpace(name)))
	if s == "." || s == "/" {
		return ""
	}
	s = invalidNameChars.ReplaceAllString(s, "-")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
	s = multiDash.ReplaceAllString(s, "_")
	s = strings.Trim(s, "-.")
	if len(s) > maxOriginalNameLen {
		ext := filepath.Ext(s)
		if len(ext) >= maxOriginalNameLen {
			ext = ""
		}
		s = strings.TrimRight(s[:maxOriginalNameLen-len(ext)], "-.") + ext
	}
	return s
}

// normalizeExt lower-cases ext and ensures a leading dot.
func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func allowedExt(ext string, allowed []string) bool {
	ext = normalizeExt(ext)
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if normalizeExt(a) == ext {
			return true
		}
	}
	return false
}
