package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/getmockd/hoverfly-go/pkg/errs"
)

// resolveBinary finds the proxy executable. The lookup order is the
// configured location, the version cache, $PATH and finally a download into
// the cache.
func (m *Manager) resolveBinary(ctx context.Context) (string, error) {
	const op = "process.resolveBinary"

	if loc := m.cfg.BinaryLocation(); loc != "" {
		if err := checkExecutable(loc); err != nil {
			return "", errs.E(op, errs.KindBinaryNotFound, err)
		}
		return loc, nil
	}

	cacheDir, err := m.cacheDir()
	if err != nil {
		m.log.Debug("no cache directory", "error", err)
	}
	var cached string
	if cacheDir != "" {
		cached = filepath.Join(cacheDir, binaryName)
		if checkExecutable(cached) == nil {
			m.log.Debug("using cached proxy binary", "path", cached)
			return cached, nil
		}
	}

	if found, err := exec.LookPath(binaryName); err == nil {
		m.log.Debug("using proxy binary from PATH", "path", found)
		return found, nil
	}

	if cached == "" {
		return "", errs.Errorf(op, errs.KindBinaryNotFound,
			"%s not on PATH and no cache directory to download into", binaryName)
	}
	manifest := m.manifest
	if file := m.cfg.ManifestFile(); file != "" {
		override, err := LoadManifest(file)
		if err != nil {
			return "", errs.E(op, errs.KindInvalidArgument, fmt.Errorf("manifest: %w", err))
		}
		manifest = override.Overlay(manifest)
	}
	asset, err := manifest.Lookup(m.cfg.Version())
	if err != nil {
		return "", errs.Errorf(op, errs.KindBinaryNotFound, "%s not on PATH: %v", binaryName, err)
	}
	m.log.Info("downloading proxy binary", "version", m.cfg.Version(), "url", asset.URL)
	if err := download(ctx, m.client, asset, cached); err != nil {
		if ctx.Err() != nil {
			return "", errs.E(op, errs.KindTimeout, err)
		}
		return "", errs.E(op, errs.KindBinaryNotFound, err)
	}
	return cached, nil
}

// cacheDir returns the per-version directory downloaded binaries live in.
func (m *Manager) cacheDir() (string, error) {
	base := m.cfg.CacheDir()
	if base == "" {
		userCache, err := os.UserCacheDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(userCache, "hoverfly")
	}
	return filepath.Join(base, m.cfg.Version()), nil
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s does not exist", path)
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
