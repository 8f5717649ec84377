package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"finsent/db"
)

// Options locates one model artifact.
type Options struct {
	Name      string        // model name, e.g. "finbert"
	Version   string        // artifact version, e.g. "v1"
	Dir       string        // local artifact directory
	SourceURL string        // base URL of the artifact host; empty disables download
	SHA256    string        // expected checksum; empty skips strict verification
	Timeout   time.Duration // download timeout
}

// Filename returns the canonical artifact file name for a model.
func Filename(name, version string) string {
	return name + "-" + version + ".fsm"
}

// Ensure makes the artifact available on disk and returns its path. A local
// copy with a matching checksum is reused; otherwise the file is downloaded
// from the source URL. Runs once at startup; an error here keeps the service
// from ever becoming ready.
func Ensure(ctx context.Context, opts Options) (string, error) {
	if opts.Name == "" || opts.Version == "" {
		return "", errors.New("artifact name and version required")
	}
	if opts.Dir == "" {
		return "", errors.New("artifact directory required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(opts.Dir, Filename(opts.Name, opts.Version))
	sum, size, err := fileDigest(path)
	switch {
	case err == nil:
		if opts.SHA256 == "" || strings.EqualFold(sum, opts.SHA256) {
			zap.S().Infof("Using local model artifact %s (%d bytes, sha256 %s)", path, size, short(sum))
			register(opts, sum, size, "local")
			return path, nil
		}
		zap.S().Warnf("Local artifact %s has sha256 %s, want %s; refetching", path, short(sum), short(opts.SHA256))
	case !os.IsNotExist(err):
		return "", err
	}

	if opts.SourceURL == "" {
		return "", fmt.Errorf("artifact %s not present and no source url configured", path)
	}

	url := strings.TrimRight(opts.SourceURL, "/") + "/" + Filename(opts.Name, opts.Version)
	sum, size, err = download(ctx, url, path, opts.Timeout)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	if opts.SHA256 != "" && !strings.EqualFold(sum, opts.SHA256) {
		os.Remove(path)
		return "", fmt.Errorf("downloaded artifact sha256 %s does not match expected %s", sum, opts.SHA256)
	}

	zap.S().Infof("Fetched model artifact %s (%d bytes, sha256 %s)", path, size, short(sum))
	register(opts, sum, size, url)
	return path, nil
}

func download(ctx context.Context, url, dest string, timeout time.Duration) (string, int64, error) {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	client := &http.Client{Timeout: timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("artifact host returned status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".fetch-*")
	if err != nil {
		return "", 0, err
	}
	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", 0, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", 0, err
	}
	return hex.EncodeToString(hash.Sum(nil)), size, nil
}

// register keeps the registry row for the artifact current. Registry
// failures are logged, not fatal: the artifact itself is already on disk.
func register(opts Options, sum string, size int64, source string) {
	rec := db.ArtifactRecord{
		Name:      opts.Name,
		Version:   opts.Version,
		SHA256:    sum,
		SizeBytes: size,
		Source:    source,
		FetchedAt: time.Now().UTC(),
	}
	existing, err := db.GetArtifact(opts.Name, opts.Version)
	if err == nil && existing != nil && existing.SHA256 == sum {
		return
	}
	if err := db.RecordArtifact(rec); err != nil {
		zap.S().Warnf("Failed to record artifact %s-%s in registry: %v", opts.Name, opts.Version, err)
	}
}

func fileDigest(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, file)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hash.Sum(nil)), size, nil
}

func short(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
