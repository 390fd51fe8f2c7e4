package providers

import (
	"os"
	"runtime"
)

// SharedLibEnv names the environment variable that overrides the onnxruntime library path.
const SharedLibEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// GetSharedLibPath returns the path to the shared library for the current platform.
//
// The configured path wins, then SharedLibEnv, then the platform default under
// third_party/.
//
// Arguments:
//   - configured: The path from Config.SharedLibPath, may be empty.
//
// Returns:
//   - string: The path to the shared library, empty when the platform has no default.
func GetSharedLibPath(configured string) string {
	if configured != "" {
		return configured
	}
	if env := os.Getenv(SharedLibEnv); env != "" {
		return env
	}
	return defaultSharedLibPath(runtime.GOOS, runtime.GOARCH)
}

func defaultSharedLibPath(goos, goarch string) string {
	switch goos {
	case "windows":
		if goarch == "amd64" {
			return "./third_party/onnxruntime.dll"
		}
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	case "linux":
		if goarch == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
	return ""
}
