// Package platform holds the filesystem naming rules that differ between
// operating systems, expressed as a table keyed by GOOS, plus the helpers that
// derive output and download paths from them.
package platform

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"unicode/utf8"
)

const maxFilenameBytes = 255

type namingRules struct {
	invalidChars string
	reserved     []string
}

const defaultGOOS = "default"

var namingTable = map[string]namingRules{
	"windows": {
		invalidChars: `\/:*?"<>|`,
		reserved: []string{
			"CON", "PRN", "AUX", "NUL",
			"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
			"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9",
		},
	},
	defaultGOOS: {invalidChars: "/"},
}

func rulesFor(goos string) namingRules {
	if r, ok := namingTable[goos]; ok {
		return r
	}
	return namingTable[defaultGOOS]
}

// SanitizeFilename turns a display title into a filename that is safe on the
// current platform.
func SanitizeFilename(name string) string {
	return sanitizeFor(runtime.GOOS, name)
}

func sanitizeFor(goos, name string) string {
	rules := rulesFor(goos)

	result := strings.ReplaceAll(strings.ToLower(name), " ", "-")
	for _, c := range rules.invalidChars {
		result = strings.ReplaceAll(result, string(c), "_")
	}
	for _, reserved := range rules.reserved {
		if strings.EqualFold(result, reserved) {
			result = "_" + result
			break
		}
	}
	if strings.HasPrefix(result, ".") {
		result = "_" + result
	}
	return truncateBytes(result, maxFilenameBytes)
}

func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

// ChapterPath returns the per-chapter directory under outputDir.
func ChapterPath(outputDir, title string) string {
	return filepath.Join(outputDir, SanitizeFilename(title))
}

// TempDir returns (and creates) the scratch directory used for in-flight downloads.
func TempDir() (string, error) {
	dir := filepath.Join(os.TempDir(), "mangafetch")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Extension returns the lower-cased extension of the URL path, or fallback
// when the URL has no short alphanumeric extension.
func Extension(rawURL, fallback string) string {
	p := rawURL
	if parsed, err := url.Parse(rawURL); err == nil {
		p = parsed.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if len(ext) < 2 || len(ext) > 6 {
		return fallback
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return fallback
		}
	}
	return ext
}
