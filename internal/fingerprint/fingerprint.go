// Package fingerprint identifies commits that carry the same change.
//
// A fingerprint hashes what a patch changes (file paths and the added and
// removed lines) while ignoring where the hunks sit and their surrounding
// context. A cherry-picked commit applied on a different base therefore
// gets the same fingerprint as its original.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
	"github.com/zeebo/blake3"
)

// FileStat summarizes the change to one file.
type FileStat struct {
	Path    string
	Added   int
	Deleted int
}

// Of returns the fingerprint of a unified diff with git extended headers.
// An empty patch (an empty commit) has the empty fingerprint, which never
// matches anything.
func Of(patch string) (string, error) {
	files, err := parse(patch)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}

	sort.Slice(files, func(i, j int) bool { return pathOf(files[i]) < pathOf(files[j]) })

	h := blake3.New()
	for _, fd := range files {
		fmt.Fprintf(h, "file %s -> %s\n", trimPrefix(fd.OrigName), trimPrefix(fd.NewName))
		if len(fd.Hunks) == 0 {
			// binary or mode-only change: the headers name the result
			for _, ext := range fd.Extended {
				if strings.HasPrefix(ext, "diff --git ") {
					continue
				}
				fmt.Fprintf(h, "ext %s\n", ext)
			}
			continue
		}
		for _, hunk := range fd.Hunks {
			for _, line := range strings.Split(string(hunk.Body), "\n") {
				if strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") {
					fmt.Fprintf(h, "%s\n", line)
				}
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Stats lists the files a patch touches with added and deleted line counts.
func Stats(patch string) ([]FileStat, error) {
	files, err := parse(patch)
	if err != nil {
		return nil, err
	}
	stats := make([]FileStat, 0, len(files))
	for _, fd := range files {
		st := FileStat{Path: pathOf(fd)}
		for _, hunk := range fd.Hunks {
			for _, line := range strings.Split(string(hunk.Body), "\n") {
				switch {
				case strings.HasPrefix(line, "+"):
					st.Added++
				case strings.HasPrefix(line, "-"):
					st.Deleted++
				}
			}
		}
		stats = append(stats, st)
	}
	return stats, nil
}

func parse(patch string) ([]*diff.FileDiff, error) {
	if strings.TrimSpace(patch) == "" {
		return nil, nil
	}
	files, err := diff.NewMultiFileDiffReader(strings.NewReader(patch)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("parse patch: %w", err)
	}
	return files, nil
}

// pathOf is the file's path after the change, or before it for deletions.
func pathOf(fd *diff.FileDiff) string {
	if name := trimPrefix(fd.NewName); name != "" && name != "/dev/null" {
		return name
	}
	return trimPrefix(fd.OrigName)
}

func trimPrefix(name string) string {
	for _, p := range []string{"a/", "b/"} {
		if strings.HasPrefix(name, p) {
			return name[len(p):]
		}
	}
	return name
}
