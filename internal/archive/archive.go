// Package archive unpacks zipped data exports into a working directory.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"energy_forecast/internal/monitoring"
)

// Extract unpacks every .zip file found directly in dataDir into
// extractDir/<archive name without extension>. Targets that already exist are
// left alone so repeated runs do not re-extract. The returned slice lists every
// target directory that is present after the call, in lexical order.
func Extract(dataDir, extractDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("reading data directory %s: %w", dataDir, err)
	}
	if err := os.MkdirAll(extractDir, 0755); err != nil {
		return nil, fmt.Errorf("creating extract directory: %w", err)
	}

	var targets []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".zip") {
			continue
		}
		zipPath := filepath.Join(dataDir, entry.Name())
		target := filepath.Join(extractDir, strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))

		if _, err := os.Stat(target); err == nil {
			targets = append(targets, target)
			continue
		}

		n, err := extractZip(zipPath, target)
		if err != nil {
			monitoring.Logf("Warning: extracting %s: %v", zipPath, err)
			os.RemoveAll(target)
			continue
		}
		monitoring.Logf("Extracted %d files from %s", n, entry.Name())
		targets = append(targets, target)
	}

	sort.Strings(targets)
	return targets, nil
}

func extractZip(zipPath, target string) (int, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, err
	}
	defer zr.Close()

	if err := os.MkdirAll(target, 0755); err != nil {
		return 0, err
	}

	n := 0
	for _, f := range zr.File {
		dest, err := safeJoin(target, f.Name)
		if err != nil {
			return n, err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0755); err != nil {
				return n, err
			}
			continue
		}
		if err := writeEntry(f, dest); err != nil {
			return n, fmt.Errorf("%s: %w", f.Name, err)
		}
		n++
	}
	return n, nil
}

// safeJoin resolves name under root and rejects entries escaping it.
func safeJoin(root, name string) (string, error) {
	dest := filepath.Join(root, name)
	rel, err := filepath.Rel(root, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(name) {
		return "", fmt.Errorf("illegal path in archive: %q", name)
	}
	return dest, nil
}

func writeEntry(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
