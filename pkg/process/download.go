package process

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/net/http/httpproxy"
)

// maxBinarySize bounds downloads and extracted archive members.
const maxBinarySize = 256 << 20

// Asset is one downloadable release artifact.
type Asset struct {
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
}

// Manifest maps a release version to its assets keyed by "GOOS/GOARCH".
type Manifest map[string]map[string]Asset

// The bundled manifest lists the release URLs. An asset without a pinned
// sha256 is never downloaded; pins come from a manifest file
// (config.WithManifestFile) or WithManifest.
//
//go:embed manifest.json
var manifestJSON []byte

// DefaultManifest returns the manifest bundled with this package.
func DefaultManifest() (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(manifestJSON, &m); err != nil {
		return nil, fmt.Errorf("bundled manifest: %w", err)
	}
	return m, nil
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Overlay returns a manifest holding the assets of base with those of m
// replacing them platform by platform. An override without a URL keeps the
// base URL and only pins the checksum.
func (m Manifest) Overlay(base Manifest) Manifest {
	out := make(Manifest, len(base)+len(m))
	for version, assets := range base {
		out[version] = make(map[string]Asset, len(assets))
		for platform, asset := range assets {
			out[version][platform] = asset
		}
	}
	for version, assets := range m {
		if out[version] == nil {
			out[version] = make(map[string]Asset, len(assets))
		}
		for platform, asset := range assets {
			if asset.URL == "" {
				asset.URL = out[version][platform].URL
			}
			out[version][platform] = asset
		}
	}
	return out
}

// Lookup returns the asset for version on the running platform.
func (m Manifest) Lookup(version string) (Asset, error) {
	platform := runtime.GOOS + "/" + runtime.GOARCH
	asset, ok := m[version][platform]
	if !ok {
		return Asset{}, fmt.Errorf("no %s release for %s in manifest", version, platform)
	}
	if asset.SHA256 == "" {
		return Asset{}, fmt.Errorf("no checksum pinned for %s %s; pin one with a manifest file", version, platform)
	}
	return asset, nil
}

// downloadClient returns an HTTP client that honors HTTP_PROXY, HTTPS_PROXY
// and NO_PROXY. Admin traffic never uses it.
func downloadClient() *http.Client {
	proxyFunc := httpproxy.FromEnvironment().ProxyFunc()
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = func(r *http.Request) (*url.URL, error) {
		return proxyFunc(r.URL)
	}
	return &http.Client{Transport: transport, Timeout: 5 * time.Minute}
}

// download fetches asset, verifies its checksum and installs the proxy binary
// at dest atomically.
func download(ctx context.Context, client *http.Client, asset Asset, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", asset.URL, resp.Status)
	}

	// Stage the artifact next to dest so the final rename stays on one filesystem.
	staged, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = staged.Close()
		_ = os.Remove(staged.Name())
	}()

	hash := sha256.New()
	n, err := io.Copy(io.MultiWriter(staged, hash), io.LimitReader(resp.Body, maxBinarySize+1))
	if err != nil {
		return fmt.Errorf("reading %s: %w", asset.URL, err)
	}
	if n > maxBinarySize {
		return fmt.Errorf("%s exceeds %d bytes", asset.URL, maxBinarySize)
	}
	if got := hex.EncodeToString(hash.Sum(nil)); !strings.EqualFold(got, asset.SHA256) {
		return fmt.Errorf("checksum mismatch for %s: got %s, want %s", asset.URL, got, asset.SHA256)
	}

	if strings.HasSuffix(strings.ToLower(path.Base(req.URL.Path)), ".zip") {
		return extractBinary(staged, n, dest)
	}
	if _, err := staged.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return writeFileAtomic(dest, staged, 0o755)
}

// extractBinary installs the proxy executable found in a zip archive.
func extractBinary(archive io.ReaderAt, size int64, dest string) error {
	zr, err := zip.NewReader(archive, size)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || path.Base(f.Name) != binaryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()
		return writeFileAtomic(dest, io.LimitReader(rc, maxBinarySize), 0o755)
	}
	return fmt.Errorf("archive has no %s", binaryName)
}

// writeFileAtomic writes r to a temp file beside path, syncs it, sets perm
// and renames it into place.
func writeFileAtomic(path string, r io.Reader, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), perm); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Join(err, os.Remove(tmp.Name()))
	}
	return nil
}
