// Package manifest writes manifest.json into the output root after each
// successful run. The manifest records the run id, the tool version and the
// source revision when the sources live in a git repository. Changed holds the
// paths reported by the run; Files is the full inventory of the output root.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/sink"
	"git.home.luguber.info/inful/assetbuilder/internal/version"
)

// FileName is the manifest's name inside the output root.
const FileName = "manifest.json"

// Manifest is the document written to FileName.
type Manifest struct {
	RunID       string    `json:"run_id"`
	Entry       string    `json:"entry,omitempty"`
	Version     string    `json:"version"`
	GeneratedAt time.Time `json:"generated_at"`
	Source      Source    `json:"source"`
	Changed     []string  `json:"changed"`
	Files       []string  `json:"files"`
}

// Source describes the source tree the run read from.
type Source struct {
	Root     string `json:"root"`
	Revision string `json:"revision,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Dirty    bool   `json:"dirty,omitempty"`
}

// Writer is a sink.Listener that writes the manifest.
type Writer struct {
	OutputRoot string
	SourceRoot string
}

// NewWriter returns a writer for the given roots.
func NewWriter(outputRoot, sourceRoot string) *Writer {
	return &Writer{OutputRoot: outputRoot, SourceRoot: sourceRoot}
}

// Name implements sink.Listener.
func (w *Writer) Name() string { return "manifest" }

// Notify implements sink.Listener.
func (w *Writer) Notify(_ context.Context, ev sink.ReloadEvent) error {
	m := Manifest{
		RunID:       ev.RunID,
		Entry:       ev.Entry,
		Version:     version.Resolved(),
		GeneratedAt: ev.Timestamp.UTC(),
		Source:      Source{Root: w.SourceRoot},
		Changed:     w.relative(ev.Paths),
	}
	files, err := w.inventory()
	if err != nil {
		return ferrors.NotificationError("list output files").WithCause(err).WithContext("path", w.OutputRoot).Build()
	}
	m.Files = files
	if rev, err := Revision(w.SourceRoot); err == nil {
		m.Source.Revision = rev.Hash
		m.Source.Branch = rev.Branch
		m.Source.Dirty = rev.Dirty
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return ferrors.NotificationError("encode manifest").WithCause(err).Build()
	}
	dst := filepath.Join(w.OutputRoot, FileName)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return ferrors.NotificationError("write manifest").WithCause(err).WithContext("path", dst).Build()
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return ferrors.NotificationError("replace manifest").WithCause(err).WithContext("path", dst).Build()
	}
	return nil
}

func (w *Writer) relative(paths []string) []string {
	files := make([]string, 0, len(paths))
	for _, p := range paths {
		if rel, err := filepath.Rel(w.OutputRoot, p); err == nil && !strings.HasPrefix(rel, "..") {
			p = rel
		}
		files = append(files, filepath.ToSlash(p))
	}
	slices.Sort(files)
	return slices.Compact(files)
}

// inventory lists every file below the output root except the manifest itself.
func (w *Writer) inventory() ([]string, error) {
	var files []string
	err := filepath.WalkDir(w.OutputRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.OutputRoot, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == FileName || strings.HasSuffix(rel, ".tmp") {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	return files, err
}

// Load reads a manifest from the output root.
func Load(outputRoot string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(outputRoot, FileName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Rev is the checked-out state of a repository.
type Rev struct {
	Hash   string
	Branch string
	Dirty  bool
}

// ErrNotRepository is returned by Revision when dir is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// Revision inspects the repository containing dir.
func Revision(dir string) (Rev, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return Rev{}, ErrNotRepository
		}
		return Rev{}, err
	}
	head, err := repo.Head()
	if err != nil {
		return Rev{}, err
	}
	rev := Rev{Hash: head.Hash().String()}
	if head.Name().IsBranch() {
		rev.Branch = head.Name().Short()
	}
	if wt, err := repo.Worktree(); err == nil {
		if st, err := wt.Status(); err == nil {
			rev.Dirty = !st.IsClean()
		}
	}
	return rev, nil
}
