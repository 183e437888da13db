package chatconfig

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DirContext pins an account and room for commands run inside a directory tree.
type DirContext struct {
	DefaultAccount string `yaml:"default_account,omitempty"`
	DefaultRoom    string `yaml:"default_room,omitempty"`
}

func ContextRelativePath() string {
	return filepath.Join(".spacechat", "context")
}

// FindContextPath walks up from startDir to the nearest context file.
func FindContextPath(startDir string) (string, error) {
	dir := filepath.Clean(startDir)
	for {
		p := filepath.Join(dir, ContextRelativePath())
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

func LoadContextFrom(path string) (*DirContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ctx DirContext
	if err := yaml.Unmarshal(data, &ctx); err != nil {
		return nil, err
	}
	return &ctx, nil
}

func LoadContextFromDir(startDir string) (*DirContext, string, error) {
	p, err := FindContextPath(startDir)
	if err != nil {
		return nil, "", err
	}
	ctx, err := LoadContextFrom(p)
	if err != nil {
		return nil, "", err
	}
	return ctx, p, nil
}

func SaveContextTo(path string, ctx *DirContext) error {
	data, err := yaml.Marshal(ctx)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}
