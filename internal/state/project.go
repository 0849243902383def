package state

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/steveyegge/medic/internal/util"
)

// manifestKinds maps dependency manifests worth recording to the
// ecosystem they imply. Presence is what a resumed session needs,
// not the parsed contents.
var manifestKinds = map[string]string{
	"go.mod":           "go",
	"package.json":     "node",
	"requirements.txt": "python",
	"pyproject.toml":   "python",
	"Cargo.toml":       "rust",
	"Gemfile":          "ruby",
}

// GitProject collects ProjectState from a working directory by
// shelling out to git. Collection is best effort: a directory that is
// not a repository (or a machine without git) still yields Path, Name,
// and manifest info with a nil error, so capture proceeds with
// whatever is known.
type GitProject struct {
	dir string
}

// NewGitProject returns a ProjectSource rooted at dir.
func NewGitProject(dir string) *GitProject {
	return &GitProject{dir: dir}
}

// ProjectState implements ProjectSource.
func (g *GitProject) ProjectState(ctx context.Context) (ProjectState, error) {
	ps := ProjectState{
		Path:         g.dir,
		Name:         filepath.Base(g.dir),
		Dependencies: detectManifests(g.dir),
	}

	branch, err := util.ExecWithOutput(g.dir, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		// Not a repository, or no commits yet. Nothing more to record.
		return ps, nil
	}
	ps.Branch = branch

	if err := ctx.Err(); err != nil {
		return ps, err
	}
	if commit, err := util.ExecWithOutput(g.dir, "git", "rev-parse", "--short=12", "HEAD"); err == nil {
		ps.Commit = commit
	}

	if err := ctx.Err(); err != nil {
		return ps, err
	}
	porcelain, err := util.ExecWithOutput(g.dir, "git", "status", "--porcelain")
	if err != nil {
		return ps, nil
	}
	ps.ModifiedFiles = parsePorcelain(porcelain)
	if len(ps.ModifiedFiles) == 0 {
		ps.VCSStatus = "clean"
	} else {
		ps.VCSStatus = "dirty"
	}
	return ps, nil
}

// parsePorcelain extracts paths from `git status --porcelain` output.
// Lines are `XY path`, with renames shown as `XY old -> new`. The
// status columns are cut off by position-independent splitting because
// the caller trims the output, which can eat a leading status space on
// the first line.
func parsePorcelain(out string) []string {
	if out == "" {
		return nil
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		_, path, ok := strings.Cut(strings.TrimLeft(line, " "), " ")
		if !ok {
			continue
		}
		path = strings.TrimLeft(path, " ")
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		files = append(files, path)
	}
	return files
}

func detectManifests(dir string) map[string]string {
	var found map[string]string
	for manifest, kind := range manifestKinds {
		if _, err := os.Stat(filepath.Join(dir, manifest)); err == nil {
			if found == nil {
				found = make(map[string]string)
			}
			found[manifest] = kind
		}
	}
	return found
}
