package uibundle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"testing/fstest"

	"github.com/keithlinneman/jangle-cms/internal/pathutil"
	"github.com/keithlinneman/jangle-cms/internal/xerrors"
)

const (
	// maxBundleSize is the maximum size of a compressed bundle from s3
	maxBundleSize int64 = 20 * 1024 * 1024 // 20MB

	// maxSingleFile is the maximum size of a single file in the bundle
	maxSingleFile int64 = 5 * 1024 * 1024 // 5MB

	// maxTotalExtract is the maximum total size of extracted content
	maxTotalExtract int64 = 50 * 1024 * 1024 // 50MB
)

// readWithHash reads all bytes from r up to maxSize, computing SHA256
// as it reads.
func readWithHash(r io.Reader, maxSize int64) ([]byte, string, error) {
	h := sha256.New()
	lr := io.LimitReader(r, maxSize+1)
	tr := io.TeeReader(lr, h)

	data, err := io.ReadAll(tr)
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxSize {
		return nil, "", xerrors.Newf("bundle exceeds max size (limit %d bytes)", maxSize)
	}

	return data, hex.EncodeToString(h.Sum(nil)), nil
}

// cleanEntryName normalizes a tar entry name and rejects anything that
// could land outside the bundle root.
func cleanEntryName(name string) (string, error) {
	name = strings.TrimPrefix(name, "./")
	if name == "" || name == "." {
		return "", nil
	}
	if path.IsAbs(name) {
		return "", xerrors.Newf("absolute path in archive: %s", name)
	}
	clean, ok := pathutil.FSName(name)
	if !ok {
		return "", xerrors.Newf("unsafe path in archive: %s", name)
	}
	return clean, nil
}

// extractTarGzToMem extracts a .tar.gz to an in-memory filesystem
func extractTarGzToMem(data []byte) (fs.FS, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Wrap(err, "open gzip")
	}
	defer gr.Close()

	mfs := make(fstest.MapFS)
	tr := tar.NewReader(gr)

	var totalBytes int64

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, xerrors.Wrap(err, "read tar header")
		}

		name, err := cleanEntryName(hdr.Name)
		if err != nil {
			return nil, err
		}
		if name == "" {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			// directories are implicit in MapFS
			continue

		case tar.TypeReg:
			if hdr.Size > maxSingleFile {
				return nil, xerrors.Newf("file %s exceeds max size (%d > %d)", name, hdr.Size, maxSingleFile)
			}

			body, err := io.ReadAll(io.LimitReader(tr, maxSingleFile+1))
			if err != nil {
				return nil, xerrors.Wrapf(err, "read %s", name)
			}
			if int64(len(body)) > maxSingleFile {
				return nil, xerrors.Newf("file %s exceeds max size after read", name)
			}

			totalBytes += int64(len(body))
			if totalBytes > maxTotalExtract {
				return nil, xerrors.Newf("total extracted size exceeds limit (%d bytes, max %d)", totalBytes, maxTotalExtract)
			}

			mfs[name] = &fstest.MapFile{
				Data: body,
				Mode: hdr.FileInfo().Mode().Perm(),
			}

		default:
			return nil, xerrors.Newf("unsupported file type in archive: %s (type=%d)", name, hdr.Typeflag)
		}
	}

	return mfs, nil
}

// LoadDir snapshots a bundle directory on disk. The directory is read live,
// edits show up on the next request.
func LoadDir(dir string) (*Snapshot, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, xerrors.Wrapf(err, "stat admin dir %s", dir)
	}
	if !info.IsDir() {
		return nil, xerrors.Newf("admin dir %s is not a directory", dir)
	}
	return NewSnapshot(os.DirFS(dir), SourceDisk)
}
