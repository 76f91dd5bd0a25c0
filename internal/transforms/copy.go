package transforms

import (
	"context"

	"git.home.luguber.info/inful/assetbuilder/internal/task"
)

// Copy copies files unchanged, keeping their relative paths.
type Copy struct {
	OnlyNewer bool `yaml:"only_newer" toml:"only_newer"`
}

// Run copies each file. With OnlyNewer, files whose destination is at least as
// new as the source are skipped and not reported as written.
func (c Copy) Run(ctx context.Context, req task.Request) ([]string, error) {
	var written []string
	for _, file := range req.Files {
		if err := checkContext(ctx); err != nil {
			return written, err
		}
		dst := dest(req, file, "")
		if c.OnlyNewer && upToDate(sourcePath(req, file), dst) {
			continue
		}
		data, err := readSource(req, file)
		if err != nil {
			return written, err
		}
		if err := writeAtomic(dst, data); err != nil {
			return written, err
		}
		written = append(written, dst)
	}
	return written, nil
}
