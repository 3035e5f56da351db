// Package apk locates dex bytecode inside its carrier file.
//
// A dex program ships either as a bare classes.dex or packed inside an
// APK/JAR zip archive, possibly split across classes2.dex, classes3.dex
// and so on (multidex). Read hides the difference from callers.
package apk

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrBadMagic = errors.New("apk: not a dex or zip file")
	ErrNoDex    = errors.New("apk: archive has no classes.dex entry")
	ErrNoEntry  = errors.New("apk: entry not found")
)

var (
	dexMagic = []byte("dex\n")
	zipMagic = []byte("PK\x03\x04")
)

// Read returns the primary bytecode payload at path. A bare .dex file
// is returned as-is; for a zip archive the classes.dex entry is
// extracted. Use ReadEntry for secondary multidex entries.
func Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("apk: read: %w", err)
	}
	switch {
	case bytes.HasPrefix(data, dexMagic):
		return data, nil
	case bytes.HasPrefix(data, zipMagic):
		return extract(data, "classes.dex")
	default:
		return nil, ErrBadMagic
	}
}

// ReadEntry extracts a named .dex entry from a zip archive.
func ReadEntry(path, name string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("apk: read: %w", err)
	}
	if !bytes.HasPrefix(data, zipMagic) {
		return nil, ErrBadMagic
	}
	return extract(data, name)
}

// DexEntries lists the classes*.dex entries in a zip archive in load
// order: classes.dex first, then classes2.dex, classes3.dex, ...
// A bare .dex file reports a single empty name.
func DexEntries(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("apk: read: %w", err)
	}
	if bytes.HasPrefix(data, dexMagic) {
		return []string{""}, nil
	}
	if !bytes.HasPrefix(data, zipMagic) {
		return nil, ErrBadMagic
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("apk: open zip: %w", err)
	}
	var names []string
	for _, f := range zr.File {
		if isDexEntry(f.Name) {
			names = append(names, f.Name)
		}
	}
	if len(names) == 0 {
		return nil, ErrNoDex
	}
	sort.Slice(names, func(i, j int) bool { return dexOrdinal(names[i]) < dexOrdinal(names[j]) })
	return names, nil
}

func extract(data []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("apk: open zip: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("apk: open %s: %w", name, err)
		}
		defer rc.Close()
		out, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("apk: extract %s: %w", name, err)
		}
		return out, nil
	}
	if name == "classes.dex" {
		return nil, ErrNoDex
	}
	return nil, fmt.Errorf("%w: %s", ErrNoEntry, name)
}

func isDexEntry(name string) bool {
	if !strings.HasPrefix(name, "classes") || !strings.HasSuffix(name, ".dex") {
		return false
	}
	mid := name[len("classes") : len(name)-len(".dex")]
	if mid == "" {
		return true
	}
	_, err := strconv.Atoi(mid)
	return err == nil
}

// dexOrdinal orders classes.dex before classes2.dex and so on.
func dexOrdinal(name string) int {
	mid := name[len("classes") : len(name)-len(".dex")]
	if mid == "" {
		return 1
	}
	n, _ := strconv.Atoi(mid)
	return n
}
