package data

import (
	"os"
	"path/filepath"

	"github.com/devricklin/feishu-relay/internal/biz/repo"
)

// assetRepo locates replacement media in a local directory
type assetRepo struct {
	dir string
}

// NewAssetRepo creates an asset repository rooted at dir
func NewAssetRepo(dir string) repo.AssetRepo {
	return &assetRepo{dir: dir}
}

// Find returns the first candidate that exists as a regular file
func (r *assetRepo) Find(candidates ...string) (string, bool) {
	for _, name := range candidates {
		// Candidates are bare file names; never resolve outside the media dir
		if name == "" || filepath.Base(name) != name {
			continue
		}
		path := filepath.Join(r.dir, name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, true
		}
	}
	return "", false
}

// Count returns the number of regular files in the media directory
func (r *assetRepo) Count() (int, error) {
	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() {
			n++
		}
	}
	return n, nil
}
