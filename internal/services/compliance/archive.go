package compliance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	ErrInvalidReportID = errors.New("invalid report id")
	ErrReportNotFound  = errors.New("report not found")

	reportIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)
)

// Archive stores rendered reports as files in a directory.
type Archive struct {
	dir string
}

func NewArchive(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	return &Archive{dir: dir}, nil
}

func (a *Archive) path(id string) (string, error) {
	if !reportIDPattern.MatchString(id) || strings.Trim(id, ".") == "" {
		return "", ErrInvalidReportID
	}
	return filepath.Join(a.dir, id+".pdf"), nil
}

// Save writes the report, replacing any earlier rendering for id.
func (a *Archive) Save(id string, data []byte) (string, error) {
	p, err := a.path(id)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(a.dir, id+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := f.Chmod(0o640); err != nil {
		f.Close()
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return filepath.Base(p), nil
}

func (a *Archive) Load(id string) ([]byte, error) {
	p, err := a.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrReportNotFound
	}
	return data, err
}

// List returns the stored report file names in lexical order.
func (a *Archive) List() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".pdf") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
