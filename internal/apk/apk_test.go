package apk

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, entries map[string][]byte) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	path := filepath.Join(t.TempDir(), "app.apk")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write apk: %v", err)
	}
	return path
}

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "classes.dex")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestReadBareDex(t *testing.T) {
	payload := []byte("dex\n035\x00rest of file")
	got, err := Read(writeFile(t, payload))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Read = %q, want %q", got, payload)
	}
}

func TestReadAPK(t *testing.T) {
	payload := []byte("dex\n035\x00primary")
	path := writeZip(t, map[string][]byte{
		"AndroidManifest.xml": []byte("<manifest/>"),
		"classes.dex":         payload,
		"classes2.dex":        []byte("dex\n035\x00secondary"),
	})

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Read = %q, want %q", got, payload)
	}
}

func TestReadEntry(t *testing.T) {
	path := writeZip(t, map[string][]byte{
		"classes.dex":  []byte("dex\n035\x00one"),
		"classes2.dex": []byte("dex\n035\x00two"),
	})

	got, err := ReadEntry(path, "classes2.dex")
	if err != nil {
		t.Fatalf("ReadEntry: %v", err)
	}
	if want := []byte("dex\n035\x00two"); !bytes.Equal(got, want) {
		t.Errorf("ReadEntry = %q, want %q", got, want)
	}

	if _, err := ReadEntry(path, "classes9.dex"); !errors.Is(err, ErrNoEntry) {
		t.Errorf("missing entry: err = %v, want ErrNoEntry", err)
	}
}

func TestReadErrors(t *testing.T) {
	if _, err := Read(writeFile(t, []byte("ELF not really"))); !errors.Is(err, ErrBadMagic) {
		t.Errorf("bad magic: err = %v, want ErrBadMagic", err)
	}

	path := writeZip(t, map[string][]byte{"resources.arsc": []byte("...")})
	if _, err := Read(path); !errors.Is(err, ErrNoDex) {
		t.Errorf("no dex entry: err = %v, want ErrNoDex", err)
	}
}

func TestDexEntries(t *testing.T) {
	path := writeZip(t, map[string][]byte{
		"classes10.dex": []byte("j"),
		"classes.dex":   []byte("a"),
		"classes2.dex":  []byte("b"),
		"classesX.dex":  []byte("not multidex"),
		"lib/arm64-v8a/libfoo.so": []byte("elf"),
	})

	got, err := DexEntries(path)
	if err != nil {
		t.Fatalf("DexEntries: %v", err)
	}
	want := []string{"classes.dex", "classes2.dex", "classes10.dex"}
	if len(got) != len(want) {
		t.Fatalf("DexEntries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DexEntries[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if _, err := DexEntries(writeFile(t, []byte("dex\n035\x00"))); err != nil {
		t.Errorf("bare dex: %v", err)
	}
}
