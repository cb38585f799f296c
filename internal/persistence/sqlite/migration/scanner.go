package migration

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var fileNamePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

type fsScanner struct{}

// NewScanner returns a Scanner reading migrations from an fs.FS.
func NewScanner() Scanner {
	return fsScanner{}
}

// Scan returns the migrations in dir ordered by numeric version.
func (fsScanner) Scan(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, newMigrationError("", dir, "read directory", err)
	}

	var migrations []Migration
	seen := make(map[int]string)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, description, err := parseFileName(entry.Name())
		if err != nil {
			return nil, newMigrationError("", entry.Name(), "validate filename", err)
		}

		n, _ := strconv.Atoi(version)
		if existing, ok := seen[n]; ok {
			return nil, newMigrationError(version, entry.Name(), "check duplicates",
				fmt.Errorf("%w: %s and %s", ErrDuplicateVersion, existing, entry.Name()))
		}
		seen[n] = entry.Name()

		filePath := path.Join(dir, entry.Name())
		body, err := fs.ReadFile(fsys, filePath)
		if err != nil {
			return nil, newMigrationError(version, filePath, "read file", err)
		}
		content := string(body)
		if len(splitStatements(content)) == 0 {
			return nil, newMigrationError(version, filePath, "validate content",
				fmt.Errorf("%w: no SQL statements", ErrInvalidMigrationFile))
		}

		if fromHeader := headerDescription(content); fromHeader != "" {
			description = fromHeader
		}

		migrations = append(migrations, Migration{
			Version:     version,
			Description: description,
			SQL:         content,
			Path:        filePath,
			Checksum:    fmt.Sprintf("%x", sha256.Sum256(body)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return versionNumber(migrations[i].Version) < versionNumber(migrations[j].Version)
	})
	return migrations, nil
}

func parseFileName(name string) (version, description string, err error) {
	matches := fileNamePattern.FindStringSubmatch(name)
	if matches == nil {
		return "", "", fmt.Errorf("%w: %q does not match {version}_{description}.sql", ErrInvalidMigrationFile, name)
	}
	if _, err := strconv.Atoi(matches[1]); err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidVersion, matches[1])
	}
	return matches[1], strings.ReplaceAll(matches[2], "_", " "), nil
}

// headerDescription reads a leading "-- Description: ..." comment.
func headerDescription(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			return ""
		}
		if rest, ok := strings.CutPrefix(line, "-- Description:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

func versionNumber(version string) int {
	n, _ := strconv.Atoi(version)
	return n
}
