package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Project is a set of generated artifacts written under one directory.
type Project struct {
	Dir   string
	Files []string
}

var fileMarker = regexp.MustCompile(`^=== FILE: (.+) ===$`)

// parseProjectFiles splits model output delimited with
// "=== FILE: path ===" markers into per-file contents. Text before the
// first marker is discarded.
func parseProjectFiles(text string) map[string]string {
	files := make(map[string]string)
	var current string
	var buf []string

	flush := func() {
		if current != "" {
			files[current] = strings.TrimLeft(strings.Join(buf, "\n"), "\n")
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if m := fileMarker.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			current = strings.TrimSpace(m[1])
			buf = buf[:0]
			continue
		}
		if current != "" {
			buf = append(buf, line)
		}
	}
	flush()

	return files
}

// writeProject materializes the parsed files under dir. Paths escaping the
// directory are rejected.
func writeProject(dir string, files map[string]string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create project dir: %w", err)
	}

	written := make([]string, 0, len(files))
	for path, content := range files {
		clean := filepath.Clean(path)
		if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
			return nil, fmt.Errorf("unsafe file path in generated project: %s", path)
		}

		dest := filepath.Join(dir, clean)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create parent directory: %w", err)
		}
		if err := os.WriteFile(dest, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", clean, err)
		}
		written = append(written, clean)
	}

	return written, nil
}

// fallbackDockerfile is written when the model omits a container build file.
func fallbackDockerfile(entrypoint string) string {
	return strings.Join([]string{
		"FROM python:3.11-slim",
		"WORKDIR /app",
		"COPY requirements.txt .",
		"RUN pip install --no-cache-dir -r requirements.txt",
		"COPY . .",
		fmt.Sprintf("CMD [\"python\", \"%s\"]", entrypoint),
		"",
	}, "\n")
}
