package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGo(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLinterFlagsMissingAndDuplicateMarkers(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "a.go", "package q\n\nconst QGood = `--sql 0b7a3c52-9d7e-4c55-8c3e-5d1f2e9a0b11\nSELECT 1`\n\nconst QMissing = `SELECT 2`\n")
	writeGo(t, dir, "b.go", "package q\n\nconst QCopy = `--sql 0b7a3c52-9d7e-4c55-8c3e-5d1f2e9a0b11\nDELETE FROM t`\n\nconst Label = \"not sql\"\n")
	writeGo(t, dir, "b_test.go", "package q\n\nconst QTest = `SELECT 3`\n")

	l := newLinter()
	if err := l.lintPath(dir); err != nil {
		t.Fatalf("lintPath: %v", err)
	}
	got := l.result()
	if len(got) != 2 {
		t.Fatalf("got %d violations: %+v", len(got), got)
	}
	if got[0].name != "QMissing" || !strings.Contains(got[0].message, "missing") {
		t.Fatalf("unexpected first violation %+v", got[0])
	}
	if got[1].name != "QCopy" || !strings.Contains(got[1].message, "already used by QGood") {
		t.Fatalf("unexpected duplicate violation %+v", got[1])
	}
}

func TestLinterAcceptsRepositorySQL(t *testing.T) {
	l := newLinter()
	if err := l.lintPath(filepath.Join("..", "..", "sqlinline")); err != nil {
		t.Fatalf("lintPath: %v", err)
	}
	if v := l.result(); len(v) != 0 {
		t.Fatalf("sqlinline has violations: %+v", v)
	}
}
