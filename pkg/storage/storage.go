package storage

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/engine"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/logger"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

var log = logger.New("storage")

// Storage owns the policy database: the in-memory bucket graph, the decision
// engine reading it, and the persistent representation on disk. It is
// confined to the dispatcher goroutine.
type Storage struct {
	root      string
	backend   *Backend
	engine    *engine.Engine
	lock      *flock.Flock
	corrupted bool
}

// New creates a storage rooted at dir. Call Load before first use.
func New(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(errors.ErrCannotCreateFile, "cannot create storage directory", err).
			WithField("path", dir)
	}
	s := &Storage{
		root: dir,
		lock: flock.New(filepath.Join(dir, LockFileName)),
	}
	s.setBackend(NewBackend(types.DenyResult()))
	return s, nil
}

func (s *Storage) setBackend(b *Backend) {
	s.backend = b
	s.engine = engine.New(b)
}

// Corrupted reports whether the database failed to load and the storage is
// serving an empty read-only policy set
func (s *Storage) Corrupted() bool {
	return s.corrupted
}

// Load reads the persistent database. A missing database is initialized
// empty. Corruption switches the storage into degraded read-only mode and is
// reported to the caller; checks keep answering from the empty root bucket.
func (s *Storage) Load() error {
	if err := recoverGenerations(s.root); err != nil {
		return err
	}

	live := filepath.Join(s.root, liveDirName)
	if _, err := os.Stat(live); os.IsNotExist(err) {
		log.Info("No database found, initializing empty database")
		s.setBackend(NewBackend(types.DenyResult()))
		s.corrupted = false
		return s.Save()
	}

	if err := s.lock.RLock(); err != nil {
		return errors.Wrap(errors.ErrFileLock, "cannot acquire read lock", err)
	}
	defer s.lock.Unlock()

	if err := VerifyChecksums(live); err != nil {
		s.degrade(err)
		return err
	}
	backend, err := loadBackend(live)
	if err != nil {
		s.degrade(err)
		return err
	}

	s.setBackend(backend)
	s.corrupted = false
	log.WithFields(map[string]interface{}{
		"buckets":  len(backend.BucketIDs()),
		"policies": backend.PolicyCount(),
	}).Info("Database loaded")
	return nil
}

func (s *Storage) degrade(cause error) {
	log.WithError(cause).Error("Database corrupted, entering read-only degraded mode")
	s.setBackend(NewBackend(types.DenyResult()))
	s.corrupted = true
}

// Save persists the current snapshot under the advisory write lock
func (s *Storage) Save() error {
	if s.corrupted {
		return errors.New(errors.ErrDatabaseReadOnly, "database is corrupted and read-only")
	}
	if err := s.lock.Lock(); err != nil {
		return errors.Wrap(errors.ErrFileLock, "cannot acquire write lock", err)
	}
	defer s.lock.Unlock()
	return persist(s.root, s.backend)
}

// Check resolves key from the root bucket
func (s *Storage) Check(key types.PolicyKey) (types.PolicyResult, error) {
	return s.engine.Check(RootBucketID, key)
}

// CheckFrom resolves key starting at an arbitrary bucket. When recursive is
// false, BUCKET redirections are not followed: a redirecting match answers
// NONE so the caller can tell no terminal decision was reached.
func (s *Storage) CheckFrom(bucketID string, recursive bool, key types.PolicyKey) (types.PolicyResult, error) {
	if recursive {
		return s.engine.Check(bucketID, key)
	}
	bucket, ok := s.backend.Bucket(bucketID)
	if !ok {
		return types.PolicyResult{}, errors.New(errors.ErrBucketNotFound, "bucket does not exist").
			WithField("bucket", bucketID)
	}
	matched, ok := engine.MostSpecific(bucket, key)
	if !ok {
		return bucket.Default, nil
	}
	if matched.Result.Type == types.TypeBucket {
		return types.NoneResult(), nil
	}
	return matched.Result, nil
}

// HasBucket reports whether a bucket exists
func (s *Storage) HasBucket(id string) bool {
	return s.backend.HasBucket(id)
}

// ListPolicies lists the policies of one bucket matching filter
func (s *Storage) ListPolicies(bucketID string, filter types.PolicyKey) ([]types.Policy, error) {
	return s.backend.ListPolicies(bucketID, filter)
}

// InsertOrUpdateBucket creates a bucket or replaces its default, then persists
func (s *Storage) InsertOrUpdateBucket(id string, def types.PolicyResult) error {
	return s.mutate(func() error {
		return s.backend.InsertOrUpdateBucket(id, def)
	})
}

// DeleteBucket removes a bucket, then persists
func (s *Storage) DeleteBucket(id string, recursive bool) error {
	return s.mutate(func() error {
		return s.backend.DeleteBucket(id, recursive)
	})
}

// InsertOrUpdatePolicy sets one policy, then persists
func (s *Storage) InsertOrUpdatePolicy(bucketID string, policy types.Policy) error {
	return s.mutate(func() error {
		return s.backend.SetPolicy(bucketID, policy)
	})
}

// DeletePolicy removes one policy, then persists
func (s *Storage) DeletePolicy(bucketID string, key types.PolicyKey) error {
	return s.mutate(func() error {
		return s.backend.DeletePolicy(bucketID, key)
	})
}

// SetPolicies applies a batch of insertions and removals as one transaction
func (s *Storage) SetPolicies(insert []BucketedPolicy, remove []BucketedKey) error {
	return s.mutate(func() error {
		for _, bk := range remove {
			if err := s.backend.DeletePolicy(bk.Bucket, bk.Key); err != nil {
				return err
			}
		}
		for _, bp := range insert {
			if err := s.backend.SetPolicy(bp.Bucket, bp.Policy); err != nil {
				return err
			}
		}
		return nil
	})
}

// BucketedPolicy is a policy qualified with its owning bucket
type BucketedPolicy struct {
	Bucket string
	Policy types.Policy
}

// BucketedKey is a policy key qualified with its owning bucket
type BucketedKey struct {
	Bucket string
	Key    types.PolicyKey
}

// Erase removes every policy matching filter, then persists
func (s *Storage) Erase(startBucket string, recursive bool, filter types.PolicyKey) error {
	return s.mutate(func() error {
		return s.backend.Erase(startBucket, recursive, filter)
	})
}

// mutate runs a mutation and persists the result. A failed mutation leaves
// the snapshot untouched; a failed persist rolls the snapshot back to the
// on-disk state so memory and disk never diverge.
func (s *Storage) mutate(apply func() error) error {
	if s.corrupted {
		return errors.New(errors.ErrDatabaseReadOnly, "database is corrupted and read-only")
	}
	if err := apply(); err != nil {
		// A batch may have been applied partially; reload the last
		// persisted snapshot
		if loadErr := s.Load(); loadErr != nil {
			log.WithError(loadErr).Error("Rollback reload failed")
		}
		return err
	}
	if err := s.Save(); err != nil {
		log.WithError(err).Error("Persist failed, rolling back in-memory state")
		if loadErr := s.Load(); loadErr != nil {
			log.WithError(loadErr).Error("Rollback reload failed")
		}
		return err
	}
	return nil
}
