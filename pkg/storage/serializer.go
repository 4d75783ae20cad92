package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

// SchemaVersion is the on-disk format version written to the index header
const SchemaVersion = 1

// liveDirName is the database directory under the storage root
const liveDirName = "db"

// serializeBackend renders every database file for a backend. Keys are the
// file names relative to the database directory.
func serializeBackend(b *Backend) map[string]string {
	files := make(map[string]string)

	var index strings.Builder
	fmt.Fprintf(&index, "version=%d\n", SchemaVersion)
	for _, id := range b.BucketIDs() {
		bucket, _ := b.Bucket(id)
		fmt.Fprintf(&index, "%s;%s\n", id, formatResult(bucket.Default))
		files[BucketFilePrefix+id] = serializeBucket(bucket)
	}
	files[IndexFileName] = index.String()
	return files
}

// serializeBucket renders one bucket's policies, one per line, sorted by key
func serializeBucket(bucket *types.PolicyBucket) string {
	var sb strings.Builder
	policies := make([]types.Policy, 0, len(bucket.Policies))
	for _, p := range bucket.Policies {
		policies = append(policies, p)
	}
	sortPolicies(policies)
	for _, p := range policies {
		fmt.Fprintf(&sb, "%s;%s;%s;%s\n", p.Key.Client, p.Key.User, p.Key.Privilege, formatResult(p.Result))
	}
	return sb.String()
}

// formatResult renders a result as "type;metadata" with the type in hex
func formatResult(r types.PolicyResult) string {
	return fmt.Sprintf("0x%X;%s", uint16(r.Type), r.Metadata)
}

func sortPolicies(policies []types.Policy) {
	sort.Slice(policies, func(i, j int) bool { return policies[i].Key.Less(policies[j].Key) })
}

// persist writes a complete database generation for backend under root and
// atomically swaps it in. The caller must hold the write lock.
func persist(root string, backend *Backend) error {
	live := filepath.Join(root, liveDirName)
	temp := live + ".temp"
	backup := live + ".backup"

	if err := os.RemoveAll(temp); err != nil {
		return errors.Wrap(errors.ErrCannotCreateFile, "cannot clear temporary database directory", err)
	}
	if err := os.MkdirAll(temp, 0700); err != nil {
		return errors.Wrap(errors.ErrCannotCreateFile, "cannot create temporary database directory", err)
	}

	files := serializeBackend(backend)
	for name, content := range files {
		if err := writeFileSynced(filepath.Join(temp, name), []byte(content)); err != nil {
			return err
		}
	}

	checksums, err := GenerateChecksums(temp)
	if err != nil {
		return err
	}
	if err := writeFileSynced(filepath.Join(temp, ChecksumFileName), []byte(checksums)); err != nil {
		return err
	}
	// The guard marks the generation complete; crash recovery trusts only
	// guarded directories
	if err := writeFileSynced(filepath.Join(temp, GuardFileName), nil); err != nil {
		return err
	}
	if err := syncDir(temp); err != nil {
		return err
	}

	if _, err := os.Stat(live); err == nil {
		if err := os.RemoveAll(backup); err != nil {
			return errors.Wrap(errors.ErrCannotCreateFile, "cannot clear backup database directory", err)
		}
		if err := os.Rename(live, backup); err != nil {
			return errors.Wrap(errors.ErrCannotCreateFile, "cannot move live database aside", err)
		}
	}
	if err := os.Rename(temp, live); err != nil {
		return errors.Wrap(errors.ErrCannotCreateFile, "cannot activate new database", err)
	}
	if err := syncDir(root); err != nil {
		return err
	}
	if err := os.RemoveAll(backup); err != nil {
		return errors.Wrap(errors.ErrCannotCreateFile, "cannot remove backup database directory", err)
	}
	return nil
}

// recoverGenerations repairs the directory layout after a crash: a guarded
// temporary generation wins over a backup, a backup wins over nothing
func recoverGenerations(root string) error {
	live := filepath.Join(root, liveDirName)
	temp := live + ".temp"
	backup := live + ".backup"

	if _, err := os.Stat(live); err == nil {
		// Live generation present; stray siblings are leftovers
		os.RemoveAll(temp)
		os.RemoveAll(backup)
		return nil
	}

	if _, err := os.Stat(filepath.Join(temp, GuardFileName)); err == nil {
		if err := os.Rename(temp, live); err != nil {
			return errors.Wrap(errors.ErrCannotCreateFile, "cannot recover temporary database", err)
		}
		os.RemoveAll(backup)
		return nil
	}
	os.RemoveAll(temp)

	if _, err := os.Stat(backup); err == nil {
		if err := os.Rename(backup, live); err != nil {
			return errors.Wrap(errors.ErrCannotCreateFile, "cannot recover backup database", err)
		}
	}
	return nil
}

func writeFileSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrap(errors.ErrCannotCreateFile, "cannot create database file", err).
			WithField("path", path)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return errors.Wrap(errors.ErrCannotCreateFile, "cannot write database file", err).
			WithField("path", path)
	}
	if err := f.Sync(); err != nil {
		return errors.Wrap(errors.ErrCannotCreateFile, "cannot sync database file", err).
			WithField("path", path)
	}
	return nil
}

func syncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.ErrCannotCreateFile, "cannot open directory for sync", err).
			WithField("path", path)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return errors.Wrap(errors.ErrCannotCreateFile, "cannot sync directory", err).
			WithField("path", path)
	}
	return nil
}
