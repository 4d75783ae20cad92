package storage

import (
	"sort"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

// RootBucketID names the bucket every plain check starts from
const RootBucketID = ""

// Backend is the in-memory bucket graph. It is not safe for concurrent use;
// the daemon confines it to the dispatcher goroutine.
type Backend struct {
	buckets map[string]*types.PolicyBucket
}

// NewBackend creates a backend holding only an empty root bucket with the
// given default result
func NewBackend(rootDefault types.PolicyResult) *Backend {
	b := &Backend{buckets: make(map[string]*types.PolicyBucket)}
	b.buckets[RootBucketID] = types.NewBucket(RootBucketID, rootDefault)
	return b
}

// Bucket returns the bucket with the given id, implementing engine.BucketProvider
func (b *Backend) Bucket(id string) (*types.PolicyBucket, bool) {
	bucket, ok := b.buckets[id]
	return bucket, ok
}

// HasBucket reports whether a bucket exists
func (b *Backend) HasBucket(id string) bool {
	_, ok := b.buckets[id]
	return ok
}

// BucketIDs returns every bucket id in sorted order
func (b *Backend) BucketIDs() []string {
	ids := make([]string, 0, len(b.buckets))
	for id := range b.buckets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// InsertOrUpdateBucket creates a bucket or replaces the default of an
// existing one, keeping its policies
func (b *Backend) InsertOrUpdateBucket(id string, def types.PolicyResult) error {
	if err := types.ValidateBucketID(id); err != nil {
		return errors.Wrap(errors.ErrInvalidBucketID, "invalid bucket id", err)
	}
	if def.Type == types.TypeBucket {
		return errors.New(errors.ErrUnknownPolicyType, "a bucket default cannot redirect to another bucket").
			WithField("bucket", id)
	}
	if bucket, ok := b.buckets[id]; ok {
		bucket.Default = def
		return nil
	}
	b.buckets[id] = types.NewBucket(id, def)
	return nil
}

// DeleteBucket removes a bucket. The root bucket is never removed. A bucket
// referenced by BUCKET policies is removed only when recursive is set, in
// which case the referencing policies are dropped as well.
func (b *Backend) DeleteBucket(id string, recursive bool) error {
	if id == RootBucketID {
		return errors.New(errors.ErrDefaultBucketDelete, "the root bucket cannot be removed")
	}
	if !b.HasBucket(id) {
		return errors.New(errors.ErrBucketNotFound, "bucket does not exist").
			WithField("bucket", id)
	}

	refs := b.referencingKeys(id)
	if len(refs) > 0 && !recursive {
		return errors.New(errors.ErrBucketReferenced, "bucket is referenced by policies").
			WithField("bucket", id).
			WithField("references", len(refs))
	}
	for _, ref := range refs {
		b.buckets[ref.Bucket].Delete(ref.Key)
	}
	delete(b.buckets, id)
	return nil
}

// bucketKeyRef locates one policy inside one bucket
type bucketKeyRef struct {
	Bucket string
	Key    types.PolicyKey
}

// referencingKeys finds every policy whose result redirects to target
func (b *Backend) referencingKeys(target string) []bucketKeyRef {
	var refs []bucketKeyRef
	for id, bucket := range b.buckets {
		for _, p := range bucket.Policies {
			if p.Result.Type == types.TypeBucket && p.Result.Metadata == target {
				refs = append(refs, bucketKeyRef{Bucket: id, Key: p.Key})
			}
		}
	}
	return refs
}

// SetPolicy inserts or replaces a policy in the named bucket
func (b *Backend) SetPolicy(bucketID string, policy types.Policy) error {
	bucket, ok := b.buckets[bucketID]
	if !ok {
		return errors.New(errors.ErrBucketNotFound, "bucket does not exist").
			WithField("bucket", bucketID)
	}
	if err := policy.Key.Validate(); err != nil {
		return errors.Wrap(errors.ErrInvalidKey, "invalid policy key", err)
	}
	if policy.Result.Type == types.TypeBucket && !b.HasBucket(policy.Result.Metadata) {
		return errors.New(errors.ErrBucketNotFound, "policy redirects to a missing bucket").
			WithField("target", policy.Result.Metadata)
	}
	bucket.Set(policy)
	return nil
}

// DeletePolicy removes the policy stored under key in the named bucket
func (b *Backend) DeletePolicy(bucketID string, key types.PolicyKey) error {
	bucket, ok := b.buckets[bucketID]
	if !ok {
		return errors.New(errors.ErrBucketNotFound, "bucket does not exist").
			WithField("bucket", bucketID)
	}
	bucket.Delete(key)
	return nil
}

// ListPolicies returns the policies of one bucket matching filter, sorted by
// key for stable listings. A wildcard filter component matches any value.
func (b *Backend) ListPolicies(bucketID string, filter types.PolicyKey) ([]types.Policy, error) {
	bucket, ok := b.buckets[bucketID]
	if !ok {
		return nil, errors.New(errors.ErrBucketNotFound, "bucket does not exist").
			WithField("bucket", bucketID)
	}
	var out []types.Policy
	for _, p := range bucket.Policies {
		if filter.Matches(p.Key) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out, nil
}

// Erase removes every policy matching filter in the start bucket and, when
// recursive, in every bucket reachable through BUCKET policies, depth-first.
// A visited set makes redirect cycles terminate.
func (b *Backend) Erase(startBucket string, recursive bool, filter types.PolicyKey) error {
	if !b.HasBucket(startBucket) {
		return errors.New(errors.ErrBucketNotFound, "bucket does not exist").
			WithField("bucket", startBucket)
	}
	visited := make(map[string]bool)
	b.erase(startBucket, recursive, filter, visited)
	return nil
}

func (b *Backend) erase(bucketID string, recursive bool, filter types.PolicyKey, visited map[string]bool) {
	if visited[bucketID] {
		return
	}
	visited[bucketID] = true

	bucket, ok := b.buckets[bucketID]
	if !ok {
		return
	}

	var remove []types.PolicyKey
	for _, p := range bucket.Policies {
		if recursive && p.Result.Type == types.TypeBucket {
			b.erase(p.Result.Metadata, recursive, filter, visited)
		}
		if filter.Matches(p.Key) {
			remove = append(remove, p.Key)
		}
	}
	for _, key := range remove {
		bucket.Delete(key)
	}
}

// Clear resets the backend to a single empty root bucket
func (b *Backend) Clear(rootDefault types.PolicyResult) {
	b.buckets = make(map[string]*types.PolicyBucket)
	b.buckets[RootBucketID] = types.NewBucket(RootBucketID, rootDefault)
}

// PolicyCount returns the total number of stored policies
func (b *Backend) PolicyCount() int {
	n := 0
	for _, bucket := range b.buckets {
		n += len(bucket.Policies)
	}
	return n
}
