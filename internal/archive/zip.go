// Package archive builds zip archives from directory trees for folder
// sharing.
package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// ZipDir writes a deflate-compressed zip of every regular file under
// srcDir to w, with entry names relative to srcDir. Symlinks and other
// irregular files are skipped.
func ZipDir(srcDir string, w io.Writer) error {
	zw := zip.NewWriter(w)

	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Method = zip.Deflate

		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(fw, f)
		f.Close()
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("zip %s: %w", srcDir, err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize zip for %s: %w", srcDir, err)
	}
	return nil
}

// ZipDirToTemp zips srcDir into a temp file and returns the file opened
// for reading along with its size. The caller must close and remove it.
func ZipDirToTemp(srcDir string) (*os.File, int64, error) {
	tmp, err := os.CreateTemp("", "lanshare-zip-*.zip")
	if err != nil {
		return nil, 0, fmt.Errorf("create temp zip: %w", err)
	}

	if err := ZipDir(srcDir, tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, 0, err
	}

	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, 0, fmt.Errorf("stat temp zip: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, 0, fmt.Errorf("rewind temp zip: %w", err)
	}

	return tmp, info.Size(), nil
}
