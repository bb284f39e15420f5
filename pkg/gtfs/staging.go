package gtfs

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const Extension string = ".txt"

// Tables lists the GTFS files that are loaded into the catalog
var Tables = []string{
	"agency",
	"calendar",
	"calendar_dates",
	"frequencies",
	"routes",
	"shapes",
	"stop_times",
	"stops",
	"trips",
}

const archiveName string = "gtfs.zip"

// Stage is a working directory that receives a downloaded GTFS archive and
// the tables extracted from it.
type Stage struct {
	dir string
}

func NewStage(root, name string) (*Stage, error) {
	dir := filepath.Join(root, name)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory %s: %w", dir, err)
	}

	return &Stage{dir: dir}, nil
}

func (s *Stage) Dir() string {
	return s.dir
}

// Archive creates (or truncates) the file that the archive is downloaded to
func (s *Stage) Archive() (*os.File, error) {
	return os.Create(filepath.Join(s.dir, archiveName))
}

// Extract unpacks the text files of the downloaded archive into the staging
// directory and removes the archive. It returns the names of the extracted
// files.
func (s *Stage) Extract() ([]string, error) {
	archivePath := filepath.Join(s.dir, archiveName)

	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	extracted := []string{}

	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, Extension) {
			continue
		}

		name := filepath.Base(f.Name)
		if err = extractFile(f, filepath.Join(s.dir, name)); err != nil {
			r.Close()
			return nil, err
		}

		extracted = append(extracted, name)
	}

	r.Close()

	if err = os.Remove(archivePath); err != nil {
		return nil, fmt.Errorf("failed to remove archive: %w", err)
	}

	slices.Sort(extracted)

	return extracted, nil
}

func extractFile(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err = io.Copy(out, rc); err != nil {
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}

	return nil
}

// Present returns the known tables that were found in the staging directory
func (s *Stage) Present() []string {
	present := []string{}

	for _, table := range Tables {
		if _, err := os.Stat(s.path(table)); err == nil {
			present = append(present, table)
		}
	}

	return present
}

// Clean removes the archive and every extracted text file from the staging
// directory
func (s *Stage) Clean() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to list staging directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), Extension) && e.Name() != archiveName) {
			continue
		}

		if err = os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
	}

	return nil
}

func (s *Stage) path(table string) string {
	return filepath.Join(s.dir, table+Extension)
}
