package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// loadFromPaths reads .rego policies from each path, recursing into
// directories.
func loadFromPaths(paths []string) ([]Policy, error) {
	var policies []Policy
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}

		if !info.IsDir() {
			p, err := loadFile(path)
			if err != nil {
				return nil, err
			}
			policies = append(policies, p)
			continue
		}

		err = filepath.WalkDir(path, func(file string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || filepath.Ext(file) != ".rego" {
				return nil
			}
			p, err := loadFile(file)
			if err != nil {
				return err
			}
			policies = append(policies, p)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", path, err)
		}
	}
	return policies, nil
}

// loadFile reads one .rego file. The policy name is the file's base
// name; severity and description come from "# severity:" and
// "# description:" header comments, defaulting to error.
func loadFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("reading policy %s: %w", path, err)
	}

	p := Policy{
		Name:     strings.TrimSuffix(filepath.Base(path), ".rego"),
		Rego:     string(data),
		Severity: SeverityError,
		Enabled:  true,
	}

	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			if trimmed != "" {
				break
			}
			continue
		}
		directive := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
		switch {
		case strings.HasPrefix(directive, "severity:"):
			p.Severity = Severity(strings.TrimSpace(strings.TrimPrefix(directive, "severity:")))
		case strings.HasPrefix(directive, "description:"):
			p.Description = strings.TrimSpace(strings.TrimPrefix(directive, "description:"))
		}
	}

	return p, nil
}
