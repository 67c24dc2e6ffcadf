package worktree

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Submodule is one entry of a .gitmodules file.
type Submodule struct {
	Name   string
	Path   string
	URL    string
	Branch string
}

// HasSubmodules reports whether dir has a non-empty .gitmodules file.
func HasSubmodules(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".gitmodules"))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// Submodules returns the submodules declared in dir's .gitmodules.
func Submodules(dir string) ([]Submodule, error) {
	f, err := os.Open(filepath.Join(dir, ".gitmodules"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return parseGitmodules(f)
}

// initSubmodules checks out the submodules of a freshly added workspace.
// Failures that leave the workspace unusable are returned; the rest are
// logged and ignored.
func (m *Manager) initSubmodules(ctx context.Context, ws *Workspace) error {
	if !HasSubmodules(ws.Path) {
		return nil
	}
	logger := m.logger.WithWorkspace(ws.Owner)

	// git 2.38.1+ refuses file:// submodule URLs unless allowed explicitly
	_, err := m.open(ws.Path).Run(ctx, "-c", "protocol.file.allow=always", "submodule", "update", "--init", "--recursive")
	if err != nil {
		if isCriticalSubmoduleError(err.Error()) {
			return err
		}
		logger.Warn("submodule initialization had issues", "path", ws.Path, "error", err)
		return nil
	}
	logger.Info("submodules initialized", "path", ws.Path)
	return nil
}

func parseGitmodules(r io.Reader) ([]Submodule, error) {
	var (
		out []Submodule
		cur *Submodule
	)
	flush := func() {
		if cur != nil && cur.Path != "" {
			out = append(out, *cur)
		}
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[submodule ") {
			flush()
			name := strings.TrimSuffix(strings.TrimPrefix(line, "[submodule "), "]")
			cur = &Submodule{Name: strings.Trim(name, `"`)}
			continue
		}
		if cur == nil {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "path":
			cur.Path = value
		case "url":
			cur.URL = value
		case "branch":
			cur.Branch = value
		}
	}
	flush()
	return out, sc.Err()
}

var criticalSubmodulePatterns = []string{
	"fatal:",
	"permission denied",
	"could not read from remote",
	"repository not found",
	"unable to access",
	"authentication failed",
	"host key verification failed",
	"no submodule mapping found",
}

func isCriticalSubmoduleError(output string) bool {
	lower := strings.ToLower(output)
	for _, p := range criticalSubmodulePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return strings.Contains(lower, "clone") && strings.Contains(lower, "failed")
}
