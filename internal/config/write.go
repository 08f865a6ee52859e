package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SetOption updates or adds key in section ("" for global) of the config
// file at path, preserving comments and the order of other lines. A missing
// key is appended to the end of its section; a missing section is appended
// to the file. The file is replaced atomically.
func SetOption(path, section, key, value string) error {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}

	var lines []string
	if len(data) > 0 {
		lines = strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	}
	newLine := key
	if value != "" {
		newLine = key + " " + value
	}

	current := ""
	sectionFound := section == ""
	// insertAt is one past the last option line of the target section.
	insertAt := -1
	if section == "" {
		insertAt = 0
	}
	replaced := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			current = strings.TrimSpace(strings.Trim(trimmed, "[]"))
			if current == section {
				sectionFound = true
				insertAt = i + 1
			}
			continue
		}
		if current != section || trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		insertAt = i + 1
		if name, _, _ := strings.Cut(trimmed, " "); name == key {
			lines[i] = newLine
			replaced = true
			break
		}
	}

	switch {
	case replaced:
	case !sectionFound:
		if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) != "" {
			lines = append(lines, "")
		}
		lines = append(lines, "["+section+"]", newLine)
	default:
		lines = append(lines[:insertAt], append([]string{newLine}, lines[insertAt:]...)...)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return writeFileAtomic(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}
