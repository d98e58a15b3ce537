package modloader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/pragmatic-rustacean/symposium/internal/fileutil"
	"github.com/pragmatic-rustacean/symposium/internal/modsource"
)

// cargoManifest is the on-disk record of which crate versions are cached,
// written with fileutil's atomic JSON writer so a crash mid-install never
// leaves a half-written manifest.
type cargoManifest struct {
	Installed map[string]string `json:"installed"` // crate -> installed version
}

func cargoManifestPath(cacheDir string) string {
	return filepath.Join(cacheDir, "cargo-manifest.json")
}

// crateVersion queries crates.io for the latest published version of crate.
func crateVersion(ctx context.Context, crate string) (string, error) {
	url := fmt.Sprintf("https://crates.io/api/v1/crates/%s", crate)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "symposium-mod-loader")

	if err := registryLimiter.Wait(ctx); err != nil {
		return "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("query crates.io for %s: %w", crate, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("query crates.io for %s: unexpected status %d", crate, resp.StatusCode)
	}

	var body struct {
		Crate struct {
			MaxVersion string `json:"max_version"`
		} `json:"crate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode crates.io response for %s: %w", crate, err)
	}
	return body.Crate.MaxVersion, nil
}

// resolveCargo ensures a binary-producing crate is installed at the
// requested (or latest) version in the mod loader's content-addressed
// cache, purging any sibling version first, then launches it.
func resolveCargo(ctx context.Context, src modsource.CargoSource, opts Options) (*Runnable, error) {
	version := src.Version
	if version == "" {
		v, err := crateVersion(ctx, src.Crate)
		if err != nil {
			return nil, err
		}
		version = v
	}

	bin := src.Bin
	if bin == "" {
		bin = src.Crate
	}
	if runtime.GOOS == "windows" {
		bin += ".exe"
	}

	if opts.CacheDir == "" {
		return nil, fmt.Errorf("modloader: cargo source requires a cache directory")
	}

	installDir := filepath.Join(opts.CacheDir, "bin", src.Crate, version)
	binPath := filepath.Join(installDir, "bin", bin)

	if _, err := os.Stat(binPath); err != nil {
		if err := installCrate(ctx, opts, src.Crate, version, installDir); err != nil {
			return nil, err
		}
	}

	return launchCommand(ctx, opts, binPath, nil, nil)
}

// installCrate installs a crate version into installDir, preferring
// `cargo binstall` (prebuilt binary download) and falling back to
// `cargo install` (compile from source) if binstall isn't available or
// fails. Sibling versions of the same crate are purged first to keep the
// cache from growing unbounded.
func installCrate(ctx context.Context, opts Options, crate, version, installDir string) error {
	if err := purgeSiblingVersions(opts.CacheDir, crate, version); err != nil && opts.Logger != nil {
		opts.Logger.Warn("failed to purge sibling cargo cache versions", "crate", crate, "error", err)
	}

	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return fmt.Errorf("create install dir: %w", err)
	}

	args := []string{"binstall", "--no-confirm", "--root", installDir,
		fmt.Sprintf("%s@%s", crate, version)}
	cmd := exec.CommandContext(ctx, "cargo", args...)
	if err := cmd.Run(); err == nil {
		return recordCargoInstall(opts.CacheDir, crate, version)
	}

	args = []string{"install", "--root", installDir, "--version", version, crate}
	cmd = exec.CommandContext(ctx, "cargo", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("cargo install %s@%s: %w: %s", crate, version, err, out)
	}
	return recordCargoInstall(opts.CacheDir, crate, version)
}

func recordCargoInstall(cacheDir, crate, version string) error {
	path := cargoManifestPath(cacheDir)
	var manifest cargoManifest
	_ = fileutil.ReadJSON(path, &manifest)
	if manifest.Installed == nil {
		manifest.Installed = make(map[string]string)
	}
	manifest.Installed[crate] = version
	return fileutil.WriteJSONAtomic(path, manifest, 0o644)
}

// purgeSiblingVersions removes any previously cached install of crate at a
// version other than the one about to be installed.
func purgeSiblingVersions(cacheDir, crate, keepVersion string) error {
	base := filepath.Join(cacheDir, "bin", crate)
	entries, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == keepVersion {
			continue
		}
		if err := os.RemoveAll(filepath.Join(base, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
