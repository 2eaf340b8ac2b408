package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyResolved copies src to dst. Symbolic links are dereferenced
// and their targets copied in place of the link, which leads to
// recursion when a link points at a directory. A dangling link
// is an error.
func CopyResolved(src, dst string) error {
	evalPath, err := filepath.EvalSymlinks(src)
	if err != nil {
		return fmt.Errorf("filepath.EvalSymlinks(%q): %w", src, err)
	}
	info, err := os.Stat(evalPath)
	if err != nil {
		return fmt.Errorf("os.Stat(%q): %w", evalPath, err)
	}
	if !info.IsDir() {
		return copyFile(evalPath, dst, info.Mode().Perm())
	}

	if err := os.MkdirAll(dst, info.Mode().Perm()|0700); err != nil {
		return fmt.Errorf("os.MkdirAll(%q): %w", dst, err)
	}
	entries, err := os.ReadDir(evalPath)
	if err != nil {
		return fmt.Errorf("os.ReadDir(%q): %w", evalPath, err)
	}
	for _, e := range entries {
		if err := CopyResolved(filepath.Join(evalPath, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("os.Open(%q): %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("os.OpenFile(%q): %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("io.Copy(%q, %q): %w", dst, src, err)
	}
	return out.Close()
}
