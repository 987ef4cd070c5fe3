// Package hub downloads model artifacts from the Hugging Face hub into the
// local cache.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	hf "github.com/gomlx/go-huggingface/hub"
	retry "github.com/sethvargo/go-retry"
)

// AllowPatterns lists the repository files worth downloading: the packaged
// model, the multi-file model bundle, label metadata and tokenizer files.
var AllowPatterns = []string{
	"model.onnx",
	"onnx/*",
	"labels.json",
	"label_map.json",
	"id2label.json",
	"config.json",
	"tokenizer.json",
	"tokenizer_config.json",
	"special_tokens_map.json",
	"vocab.txt",
}

// Artifacts is a local snapshot of a repository.
type Artifacts struct {
	Dir   string
	Files []string
}

type repository interface {
	FileNames() ([]string, error)
	DownloadFile(name string) (string, error)
}

type hubRepository struct {
	repo *hf.Repo
}

func (r hubRepository) FileNames() ([]string, error) {
	var names []string
	for name, err := range r.repo.IterFileNames() {
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func (r hubRepository) DownloadFile(name string) (string, error) {
	return r.repo.DownloadFile(name)
}

type Fetcher struct {
	RepoID   string
	CacheDir string
	Token    string
	// Retries is the number of extra attempts for a failed listing or download.
	Retries int
	// Backoff is the first retry delay; later delays follow a Fibonacci sequence.
	Backoff time.Duration

	open func() repository
}

func NewFetcher(repoID, cacheDir, token string, retries int) *Fetcher {
	return &Fetcher{
		RepoID:   repoID,
		CacheDir: cacheDir,
		Token:    token,
		Retries:  retries,
		Backoff:  time.Second,
	}
}

func (f *Fetcher) repo() repository {
	if f.open != nil {
		return f.open()
	}
	r := hf.New(f.RepoID)
	if f.CacheDir != "" {
		r = r.WithCacheDir(f.CacheDir)
	}
	if f.Token != "" {
		r = r.WithAuth(f.Token)
	}
	return hubRepository{repo: r}
}

// Fetch downloads every allow-listed file of the repository, reusing cached
// copies, and returns the snapshot directory.
func (f *Fetcher) Fetch(ctx context.Context) (Artifacts, error) {
	if f.RepoID == "" {
		return Artifacts{}, errors.New("no hub repository configured")
	}
	repo := f.repo()

	var names []string
	err := f.withRetry(ctx, func() error {
		var err error
		names, err = repo.FileNames()
		return err
	})
	if err != nil {
		return Artifacts{}, fmt.Errorf("failed to list %s: %w", f.RepoID, err)
	}

	wanted := Filter(names)
	if len(wanted) == 0 {
		return Artifacts{}, fmt.Errorf("repository %s has no model artifacts", f.RepoID)
	}

	var art Artifacts
	for _, name := range wanted {
		var local string
		err := f.withRetry(ctx, func() error {
			var err error
			local, err = repo.DownloadFile(name)
			return err
		})
		if err != nil {
			return Artifacts{}, fmt.Errorf("failed to download %s from %s: %w", name, f.RepoID, err)
		}
		if art.Dir == "" {
			art.Dir = snapshotRoot(local, name)
		}
		art.Files = append(art.Files, name)
		slog.Debug("Fetched artifact", slog.String("repo", f.RepoID), slog.String("file", name))
	}
	slog.Info("Model artifacts ready", slog.String("repo", f.RepoID), slog.String("dir", art.Dir), slog.Int("files", len(art.Files)))
	return art, nil
}

func (f *Fetcher) withRetry(ctx context.Context, fn func() error) error {
	backoff := f.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	b := retry.WithMaxRetries(uint64(max(f.Retries, 0)), retry.NewFibonacci(backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := fn(); err != nil {
			slog.Warn("Hub request failed", slog.String("repo", f.RepoID), slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}
		return nil
	})
}

// Filter keeps the repository file names matching AllowPatterns, preserving order.
func Filter(names []string) []string {
	var out []string
	for _, name := range names {
		if Allowed(name) {
			out = append(out, name)
		}
	}
	return out
}

func Allowed(name string) bool {
	for _, p := range AllowPatterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}

// snapshotRoot strips the repository-relative name from a downloaded file path.
func snapshotRoot(local, name string) string {
	rel := filepath.FromSlash(name)
	if !strings.HasSuffix(local, rel) {
		return filepath.Dir(local)
	}
	return filepath.Clean(strings.TrimSuffix(local, rel))
}
