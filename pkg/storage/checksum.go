package storage

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
)

const (
	// IndexFileName is the bucket index inside a database directory
	IndexFileName = "buckets"
	// ChecksumFileName holds the per-file hashes plus a self-checksum
	ChecksumFileName = "checksum"
	// GuardFileName marks a completely written database generation
	GuardFileName = "guard"
	// LockFileName is the advisory lock taken for the whole write transaction
	LockFileName = "lock"
	// BucketFilePrefix prefixes per-bucket policy files; the root bucket's
	// empty id makes its file exactly the prefix
	BucketFilePrefix = "_"
)

// md5Hex returns the lowercase hex MD5 digest of data
func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// GenerateChecksums computes the checksum file body for the data files in a
// database directory. Lines are sorted by filename; the final line hashes the
// preceding lines so the checksum file guards itself.
func GenerateChecksums(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.Wrap(errors.ErrCannotCreateFile, "cannot read database directory", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == ChecksumFileName || name == GuardFileName || name == LockFileName {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var body strings.Builder
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", errors.Wrap(errors.ErrCannotCreateFile, "cannot read database file", err).
				WithField("file", name)
		}
		fmt.Fprintf(&body, "%s;%s\n", name, md5Hex(data))
	}
	fmt.Fprintf(&body, "%s;%s\n", ChecksumFileName, md5Hex([]byte(body.String())))
	return body.String(), nil
}

// VerifyChecksums checks every data file of a database directory against the
// checksum file, including the checksum file's own trailing self-hash
func VerifyChecksums(dir string) error {
	raw, err := os.ReadFile(filepath.Join(dir, ChecksumFileName))
	if err != nil {
		return errors.Corrupted(errors.CorruptionMissingFile, "checksum file missing")
	}

	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) == 0 {
		return errors.Corrupted(errors.CorruptionChecksum, "checksum file is empty")
	}

	// Validate the self-checksum first: it covers every preceding line
	selfLine := lines[len(lines)-1]
	name, wantSelf, ok := splitChecksumLine(selfLine)
	if !ok || name != ChecksumFileName {
		return errors.CorruptedLine(errors.CorruptionRecord, "malformed self-checksum line", len(lines))
	}
	covered := strings.Join(lines[:len(lines)-1], "\n")
	if len(lines) > 1 {
		covered += "\n"
	}
	if md5Hex([]byte(covered)) != wantSelf {
		return errors.Corrupted(errors.CorruptionChecksum, "checksum file failed its self-check")
	}

	recorded := make(map[string]string)
	for i, line := range lines[:len(lines)-1] {
		name, sum, ok := splitChecksumLine(line)
		if !ok {
			return errors.CorruptedLine(errors.CorruptionRecord, "malformed checksum line", i+1)
		}
		recorded[name] = sum
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Corrupted(errors.CorruptionMissingFile, "cannot read database directory")
	}
	seen := make(map[string]bool)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == ChecksumFileName || name == GuardFileName || name == LockFileName {
			continue
		}
		want, ok := recorded[name]
		if !ok {
			return errors.Corrupted(errors.CorruptionChecksum, "file has no checksum record: "+name)
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return errors.Corrupted(errors.CorruptionMissingFile, "cannot read database file: "+name)
		}
		if md5Hex(data) != want {
			return errors.Corrupted(errors.CorruptionChecksum, "checksum mismatch for file: "+name)
		}
		seen[name] = true
	}
	for name := range recorded {
		if !seen[name] {
			return errors.Corrupted(errors.CorruptionMissingFile, "file named in checksum is missing: "+name)
		}
	}
	return nil
}

func splitChecksumLine(line string) (name, sum string, ok bool) {
	idx := strings.LastIndexByte(line, ';')
	if idx < 0 {
		return "", "", false
	}
	name, sum = line[:idx], line[idx+1:]
	if len(sum) != 2*md5.Size {
		return "", "", false
	}
	return name, sum, true
}

// WriteChecksums regenerates the checksum file of a database directory in
// place. The chsgen command calls this after manual database edits.
func WriteChecksums(dir string) error {
	body, err := GenerateChecksums(dir)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, ChecksumFileName)
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		return errors.Wrap(errors.ErrCannotCreateFile, "cannot write checksum file", err)
	}
	return nil
}
