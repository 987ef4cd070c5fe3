package onnx

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const libEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

var (
	initOnce sync.Once
	initErr  error
)

// LibPath picks the ONNX Runtime shared library: the configured path, then
// ONNXRUNTIME_SHARED_LIBRARY_PATH, then well-known install locations.
func LibPath(configured string) string {
	if configured != "" {
		return configured
	}
	if p := os.Getenv(libEnv); p != "" {
		return p
	}
	return firstExisting(candidates(runtime.GOOS))
}

func candidates(goos string) []string {
	switch goos {
	case "linux":
		return []string{
			filepath.Join("onnxlibs", "libonnxruntime.so"),
			"/usr/local/lib/libonnxruntime.so",
			"/usr/lib/libonnxruntime.so",
			"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
		}
	case "darwin":
		return []string{
			"/usr/local/lib/libonnxruntime.dylib",
			"/opt/homebrew/lib/libonnxruntime.dylib",
		}
	case "windows":
		return []string{"onnxruntime.dll"}
	default:
		return nil
	}
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Init loads the shared library and initializes the ONNX Runtime
// environment once per process.
func Init(configured string) error {
	initOnce.Do(func() {
		path := LibPath(configured)
		if path == "" {
			initErr = fmt.Errorf("ONNX Runtime library not found; set libonnx or %s", libEnv)
			return
		}
		slog.Info("Using ONNX Runtime library", slog.String("path", path))
		ort.SetSharedLibraryPath(path)
		if err := ort.InitializeEnvironment(); err != nil {
			initErr = fmt.Errorf("failed to initialize ONNX Runtime environment: %w", err)
		}
	})
	return initErr
}

func Destroy() {
	if ort.IsInitialized() {
		if err := ort.DestroyEnvironment(); err != nil {
			slog.Error("Failed to destroy ONNX Runtime environment", slog.String("error", err.Error()))
		}
	}
}
