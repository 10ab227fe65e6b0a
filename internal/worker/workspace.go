package worker

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// setupWorkspace populates dir with everything a worker needs to run the
// verifier independently of every other worker: the top-level .saw scripts
// (minus denylist), and the spec/ and HMAC/ trees, copied out of baseDir.
// An empty bitcode/ subdirectory is created for the worker's mutated
// bitcode copy.
func setupWorkspace(baseDir, dir string, denylist []string) error {
	ignored := make(map[string]struct{}, len(denylist))
	for _, name := range denylist {
		ignored[name] = struct{}{}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("worker: failed to create workspace %s: %w", dir, err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "bitcode"), 0755); err != nil {
		return fmt.Errorf("worker: failed to create %s/bitcode: %w", dir, err)
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return fmt.Errorf("worker: failed to list %s: %w", baseDir, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".saw") {
			continue
		}
		if _, skip := ignored[name]; skip {
			continue
		}
		if err := copyFile(filepath.Join(baseDir, name), filepath.Join(dir, name)); err != nil {
			return err
		}
	}

	for _, sub := range []string{"spec", "HMAC"} {
		src := filepath.Join(baseDir, sub)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := copyTree(src, filepath.Join(dir, sub)); err != nil {
			return err
		}
	}

	return nil
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("worker: failed to create %s: %w", filepath.Dir(dst), err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("worker: failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("worker: failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("worker: failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}
