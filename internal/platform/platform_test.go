package platform

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeFilenameDefaultRules(t *testing.T) {
	got := sanitizeFor("linux", "Chapter 1: Test/With?Invalid:Chars")
	if strings.Contains(got, "/") {
		t.Fatalf("slashes must be replaced: %s", got)
	}
	if got != "chapter-1:-test_with?invalid:chars" {
		t.Fatalf("unexpected sanitized name: %s", got)
	}
}

func TestSanitizeFilenameWindowsRules(t *testing.T) {
	got := sanitizeFor("windows", `Windows:reserved*chars?`)
	if strings.ContainsAny(got, `\/:*?"<>|`) {
		t.Fatalf("windows invalid chars left in %q", got)
	}
	if got := sanitizeFor("windows", "con"); got != "_con" {
		t.Fatalf("reserved name should be prefixed, got %q", got)
	}
	if got := sanitizeFor("linux", "con"); got != "con" {
		t.Fatalf("reserved names only apply on windows, got %q", got)
	}
}

func TestSanitizeFilenameHiddenAndLength(t *testing.T) {
	if got := sanitizeFor("linux", ".hidden"); got != "_.hidden" {
		t.Fatalf("leading dot should be prefixed, got %q", got)
	}
	long := strings.Repeat("é", 200) // 400 bytes
	got := sanitizeFor("linux", long)
	if len(got) > maxFilenameBytes {
		t.Fatalf("expected <= %d bytes, got %d", maxFilenameBytes, len(got))
	}
	if got == "" {
		t.Fatalf("sanitized name should keep content")
	}
}

func TestChapterPathJoinsSanitizedTitle(t *testing.T) {
	out := filepath.Join("tmp", "manga")
	path := ChapterPath(out, "Chapter 1: Test")
	if filepath.Dir(path) != out {
		t.Fatalf("chapter path should live under output dir: %s", path)
	}
	if !strings.Contains(filepath.Base(path), "chapter") {
		t.Fatalf("expected slug in %s", path)
	}
}

func TestExtension(t *testing.T) {
	cases := map[string]string{
		"https://cdn.example.com/a/001.PNG":      ".png",
		"https://cdn.example.com/a/001.webp?x=1": ".webp",
		"https://cdn.example.com/a/001":          ".jpg",
		"https://cdn.example.com/a/file.tar~gz":  ".jpg",
		"https://cdn.example.com/a/v1.2/page":    ".jpg",
		"https://cdn.example.com/a/p.extremely":  ".jpg",
	}
	for in, want := range cases {
		if got := Extension(in, ".jpg"); got != want {
			t.Fatalf("Extension(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTempDirExists(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	dir, err := TempDir()
	if err != nil {
		t.Fatalf("TempDir error: %v", err)
	}
	if filepath.Base(dir) != "mangafetch" {
		t.Fatalf("unexpected temp dir %s", dir)
	}
}
