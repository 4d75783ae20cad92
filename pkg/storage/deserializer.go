package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

// loadBackend reads a verified database directory into a fresh backend
func loadBackend(dir string) (*Backend, error) {
	indexRaw, err := os.ReadFile(filepath.Join(dir, IndexFileName))
	if err != nil {
		return nil, errors.Corrupted(errors.CorruptionMissingFile, "bucket index missing")
	}

	lines := splitLines(string(indexRaw))
	if len(lines) == 0 {
		return nil, errors.Corrupted(errors.CorruptionRecord, "bucket index is empty")
	}
	if err := parseVersionHeader(lines[0]); err != nil {
		return nil, err
	}

	backend := &Backend{buckets: make(map[string]*types.PolicyBucket)}
	for i, line := range lines[1:] {
		lineNo := i + 2
		id, def, err := parseIndexLine(line, lineNo)
		if err != nil {
			return nil, err
		}
		if _, dup := backend.buckets[id]; dup {
			return nil, errors.CorruptedLine(errors.CorruptionRecord, "duplicate bucket in index", lineNo)
		}
		bucket, err := loadBucket(dir, id, def)
		if err != nil {
			return nil, err
		}
		backend.buckets[id] = bucket
	}

	if !backend.HasBucket(RootBucketID) {
		return nil, errors.Corrupted(errors.CorruptionRecord, "bucket index has no root bucket")
	}
	if err := validateReferences(backend); err != nil {
		return nil, err
	}
	return backend, nil
}

func parseVersionHeader(line string) error {
	const prefix = "version="
	if !strings.HasPrefix(line, prefix) {
		return errors.CorruptedLine(errors.CorruptionVersion, "bucket index has no version header", 1)
	}
	v, err := strconv.Atoi(line[len(prefix):])
	if err != nil || v != SchemaVersion {
		return errors.CorruptedLine(errors.CorruptionVersion,
			fmt.Sprintf("unsupported schema version %q", line[len(prefix):]), 1)
	}
	return nil
}

func parseIndexLine(line string, lineNo int) (string, types.PolicyResult, error) {
	parts := strings.SplitN(line, ";", 3)
	if len(parts) != 3 {
		return "", types.PolicyResult{}, errors.CorruptedLine(errors.CorruptionRecord, "malformed bucket index line", lineNo)
	}
	id := parts[0]
	if err := types.ValidateBucketID(id); err != nil {
		return "", types.PolicyResult{}, errors.CorruptedLine(errors.CorruptionRecord, "invalid bucket id in index", lineNo)
	}
	def, err := parseResult(parts[1], parts[2], lineNo)
	if err != nil {
		return "", types.PolicyResult{}, err
	}
	return id, def, nil
}

func loadBucket(dir, id string, def types.PolicyResult) (*types.PolicyBucket, error) {
	bucket := types.NewBucket(id, def)

	raw, err := os.ReadFile(filepath.Join(dir, BucketFilePrefix+id))
	if err != nil {
		return nil, errors.Corrupted(errors.CorruptionMissingFile, "bucket file missing: "+BucketFilePrefix+id)
	}

	for i, line := range splitLines(string(raw)) {
		lineNo := i + 1
		policy, err := parsePolicyLine(line, lineNo)
		if err != nil {
			return nil, err
		}
		bucket.Set(policy)
	}
	return bucket, nil
}

func parsePolicyLine(line string, lineNo int) (types.Policy, error) {
	parts := strings.SplitN(line, ";", 5)
	if len(parts) != 5 {
		return types.Policy{}, errors.CorruptedLine(errors.CorruptionRecord, "malformed policy line", lineNo)
	}
	key := types.NewPolicyKey(parts[0], parts[1], parts[2])
	if err := key.Validate(); err != nil {
		return types.Policy{}, errors.CorruptedLine(errors.CorruptionRecord, "invalid policy key", lineNo)
	}
	result, err := parseResult(parts[3], parts[4], lineNo)
	if err != nil {
		return types.Policy{}, err
	}
	return types.Policy{Key: key, Result: result}, nil
}

func parseResult(typeField, metadata string, lineNo int) (types.PolicyResult, error) {
	v, err := strconv.ParseUint(typeField, 0, 16)
	if err != nil {
		return types.PolicyResult{}, errors.CorruptedLine(errors.CorruptionRecord, "malformed policy type", lineNo)
	}
	return types.PolicyResult{Type: types.PolicyType(v), Metadata: metadata}, nil
}

// validateReferences checks that every BUCKET policy names an existing bucket
func validateReferences(backend *Backend) error {
	for id, bucket := range backend.buckets {
		for _, p := range bucket.Policies {
			if p.Result.Type == types.TypeBucket && !backend.HasBucket(p.Result.Metadata) {
				return errors.Corrupted(errors.CorruptionDanglingBucket,
					fmt.Sprintf("bucket %q redirects to missing bucket %q", id, p.Result.Metadata))
			}
		}
	}
	return nil
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
