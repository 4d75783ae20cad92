package engine

import (
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

// BucketProvider supplies buckets to the engine. The provider must return a
// consistent snapshot for the duration of one Check call; the daemon
// guarantees this by running all checks and mutations on one goroutine.
type BucketProvider interface {
	Bucket(id string) (*types.PolicyBucket, bool)
}

// Engine resolves policy queries against a bucket graph. It never mutates the
// provider and attaches no interpretation to plugin-typed results.
type Engine struct {
	provider BucketProvider
}

// New creates an engine reading from provider
func New(provider BucketProvider) *Engine {
	return &Engine{provider: provider}
}

// Check walks the bucket graph from bucketID and resolves key to a result.
//
// In each bucket the most specific matching policy wins; among equally
// specific matches the lexicographically smallest (client, user, privilege)
// triple is chosen, so results do not depend on insertion order. BUCKET
// results recurse into the named bucket, with a NONE answer falling through
// to the current bucket's default. Revisiting a bucket on the same walk
// yields NONE, which bounds recursion by the number of buckets.
func (e *Engine) Check(bucketID string, key types.PolicyKey) (types.PolicyResult, error) {
	visited := make(map[string]bool)
	result, err := e.check(bucketID, key, visited)
	if err != nil {
		return types.PolicyResult{}, err
	}
	// A NONE answer falls through to the caller's default at every level of
	// the walk; the outermost caller is the origin bucket itself.
	if result.Type == types.TypeNone {
		if origin, ok := e.provider.Bucket(bucketID); ok && origin.Default.Type != types.TypeNone {
			return origin.Default, nil
		}
	}
	return result, nil
}

func (e *Engine) check(bucketID string, key types.PolicyKey, visited map[string]bool) (types.PolicyResult, error) {
	if visited[bucketID] {
		return types.NoneResult(), nil
	}
	visited[bucketID] = true

	bucket, ok := e.provider.Bucket(bucketID)
	if !ok {
		return types.PolicyResult{}, errors.New(errors.ErrBucketNotFound, "bucket does not exist").
			WithField("bucket", bucketID)
	}

	matched, ok := MostSpecific(bucket, key)
	if !ok {
		return bucket.Default, nil
	}

	switch matched.Result.Type {
	case types.TypeBucket:
		inner, err := e.check(matched.Result.Metadata, key, visited)
		if err != nil {
			return types.PolicyResult{}, err
		}
		if inner.Type == types.TypeNone {
			return bucket.Default, nil
		}
		return inner, nil
	case types.TypeNone:
		return types.NoneResult(), nil
	default:
		return matched.Result, nil
	}
}

// MostSpecific selects the winning policy for key in bucket, if any matches
func MostSpecific(bucket *types.PolicyBucket, key types.PolicyKey) (types.Policy, bool) {
	var (
		best  types.Policy
		found bool
	)
	for _, p := range bucket.Policies {
		if !p.Key.Matches(key) {
			continue
		}
		if !found || better(p.Key, best.Key) {
			best = p
			found = true
		}
	}
	return best, found
}

// better reports whether candidate should win over current
func better(candidate, current types.PolicyKey) bool {
	cs, bs := candidate.Specificity(), current.Specificity()
	if cs != bs {
		return cs > bs
	}
	return candidate.Less(current)
}
