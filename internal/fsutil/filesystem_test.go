package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeString(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func mustRead(t *testing.T, fsys FileSystem, name string) string {
	t.Helper()
	data, err := fsys.ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", name, err)
	}
	return string(data)
}

func TestOSFileSystem_WriteTo(t *testing.T) {
	var fsys FileSystem = OSFileSystem{}
	path := filepath.Join(t.TempDir(), "nested", "out.csv")

	if err := WriteTo(fsys, path, writeString("a,b\n")); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if got := mustRead(t, fsys, path); got != "a,b\n" {
		t.Errorf("contents = %q, want %q", got, "a,b\n")
	}
	for _, p := range []string{path, filepath.Dir(path)} {
		if !fsys.Exists(p) {
			t.Errorf("Exists(%s) = false", p)
		}
	}
}

func TestWriteTo_PropagatesWriteError(t *testing.T) {
	boom := errors.New("boom")
	err := WriteTo(NewMemoryFileSystem(), "out/a.csv", func(io.Writer) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("WriteTo error = %v, want %v", err, boom)
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "wrong_cases")
	if err := EnsureDir(OSFileSystem{}, dir); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("%s is not a directory", dir)
	}

	if err := EnsureDir(OSFileSystem{}, ""); err == nil {
		t.Error("EnsureDir(\"\") = nil, want error")
	}
}

func TestMemoryFileSystem(t *testing.T) {
	m := NewMemoryFileSystem()

	if _, err := m.ReadFile(filepath.Join("out", "missing.csv")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadFile(missing) error = %v, want fs.ErrNotExist", err)
	}

	a := filepath.Join("out", "logs", "a.csv")
	b := filepath.Join("out", "b.txt")
	if err := WriteTo(m, a, writeString("x")); err != nil {
		t.Fatal(err)
	}
	if err := WriteTo(m, b, writeString("abc")); err != nil {
		t.Fatal(err)
	}

	data, err := m.ReadFile(a)
	if err != nil {
		t.Fatal(err)
	}
	data[0] = 'z'
	if got := mustRead(t, m, a); got != "x" {
		t.Errorf("contents = %q after mutating a returned copy, want %q", got, "x")
	}

	exists := []struct {
		name string
		want bool
	}{
		{filepath.Join("out", "logs"), true},
		{"out", true},
		{"out//b.txt", true},
		{"logs", false},
	}
	for _, tt := range exists {
		if got := m.Exists(tt.name); got != tt.want {
			t.Errorf("Exists(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}

	if diff := cmp.Diff([]string{b, a}, m.Files("out")); diff != "" {
		t.Errorf("Files(out) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{a}, m.Files(filepath.Join("out", "logs"))); diff != "" {
		t.Errorf("Files(out/logs) mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryFileSystem_CreateTruncates(t *testing.T) {
	m := NewMemoryFileSystem()
	if err := WriteTo(m, "a.csv", writeString("long contents")); err != nil {
		t.Fatal(err)
	}

	w, err := m.Create("a.csv")
	if err != nil {
		t.Fatal(err)
	}
	if got := mustRead(t, m, "a.csv"); got != "" {
		t.Errorf("contents after Create = %q, want empty", got)
	}

	_, _ = io.WriteString(w, "new")
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if got := mustRead(t, m, "a.csv"); got != "new" {
		t.Errorf("contents = %q, want %q", got, "new")
	}
}
