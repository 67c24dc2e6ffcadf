package git

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// UnresolvedConflicts returns the paths, relative to dir, that still contain
// conflict markers. Missing files count as resolved (deleted on purpose).
func UnresolvedConflicts(dir string, paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		found, err := hasConflictMarkers(filepath.Join(dir, p))
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, p)
		}
	}
	return out, nil
}

func hasConflictMarkers(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "<<<<<<< ") || strings.HasPrefix(line, ">>>>>>> ") {
			return true, nil
		}
	}
	return false, sc.Err()
}
