// Package release derives the names of the release artifacts produced by the CI pipeline.
package release

import (
	"fmt"
	"runtime"
	"strings"
)

// Getenv matches the signature of os.Getenv
type Getenv func(string) string

func firstOf(env Getenv, fallback string, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(env(key)); value != "" {
			return value
		}
	}
	return fallback
}

// Toolchain returns the toolchain channel the binary was built with
func Toolchain(env Getenv) string {
	return firstOf(env, runtime.Version(), "TRAVIS_GO_VERSION", "TRAVIS_RUST_VERSION")
}

// ArtifactName returns star-<os>-<arch>-<toolchain>.<ext>. The CI variables take precedence over the values
// of the running binary.
func ArtifactName(env Getenv, ext string) string {
	if ext == "" {
		ext = "tar.xz"
	}
	ext = strings.TrimPrefix(ext, ".")

	osName := firstOf(env, runtime.GOOS, "TRAVIS_OS_NAME")
	arch := firstOf(env, runtime.GOARCH, "TRAVIS_CPU_ARCH")

	return fmt.Sprintf("star-%s-%s-%s.%s", osName, arch, Toolchain(env), ext)
}
