package contentstore

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SafeExtract unpacks a gzip-compressed tar stream into destDir, rejecting
// any member whose normalized destination path escapes destDir: a `..`
// segment, an absolute path, or a symlink target pointing outside. Spec §3.3
// and testable property 6 (§8) make this mandatory worker-side behavior,
// not a convention.
func SafeExtract(r io.Reader, destDir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("contentstore: opening gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("contentstore: reading tar entry: %w", err)
		}

		target, err := safeExtractTarget(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := writeRegularFile(tr, target, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink, tar.TypeLink:
			if err := validateLinkTarget(destDir, target, hdr.Linkname); err != nil {
				return err
			}
			// Link targets are not created: workers only need the
			// regular-file content, and following untrusted symlinks
			// on extraction is exactly the escape this guards against.
		default:
			// Ignore device files, fifos, etc. — not part of a
			// playbook/inventory/library/callback_plugins bundle.
		}
	}
}

func safeExtractTarget(destDir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: absolute path %q", ErrPathEscape, name)
	}
	cleanName := filepath.Clean(name)
	if cleanName == ".." || strings.HasPrefix(cleanName, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, name)
	}

	target := filepath.Join(destDir, cleanName)
	root := filepath.Clean(destDir) + string(os.PathSeparator)
	if !strings.HasPrefix(target+string(os.PathSeparator), root) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, name)
	}
	return target, nil
}

func validateLinkTarget(destDir, linkPath, linkname string) error {
	var resolved string
	if filepath.IsAbs(linkname) {
		resolved = filepath.Clean(linkname)
	} else {
		resolved = filepath.Join(filepath.Dir(linkPath), linkname)
	}
	root := filepath.Clean(destDir) + string(os.PathSeparator)
	if !strings.HasPrefix(resolved+string(os.PathSeparator), root) {
		return fmt.Errorf("%w: link target %q", ErrPathEscape, linkname)
	}
	return nil
}

func writeRegularFile(r io.Reader, target string, mode os.FileMode) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}
