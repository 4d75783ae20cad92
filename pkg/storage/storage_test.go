package storage

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	if err := s.Load(); err != nil {
		t.Fatalf("Failed to load fresh storage: %v", err)
	}
	return s
}

func key(client, user, privilege string) types.PolicyKey {
	return types.NewPolicyKey(client, user, privilege)
}

func TestCheckScenarioDirect(t *testing.T) {
	s := newTestStorage(t)

	err := s.InsertOrUpdatePolicy(RootBucketID, types.Policy{
		Key:    key("app-A", "user-1", "camera"),
		Result: types.AllowResult(),
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	result, err := s.Check(key("app-A", "user-1", "camera"))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if result.Type != types.TypeAllow {
		t.Errorf("Expected ALLOW, got %v", result.Type)
	}

	result, err = s.Check(key("app-A", "user-1", "mic"))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if result.Type != types.TypeDeny {
		t.Errorf("Expected DENY, got %v", result.Type)
	}
}

func TestSpecificityMonotonicity(t *testing.T) {
	s := newTestStorage(t)

	broad := types.Policy{Key: key("app-A", "*", "*"), Result: types.AllowResult()}
	if err := s.InsertOrUpdatePolicy(RootBucketID, broad); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	q := key("app-A", "user-1", "camera")
	result, _ := s.Check(q)
	if result.Type != types.TypeAllow {
		t.Fatalf("Expected ALLOW before refinement, got %v", result.Type)
	}

	// A strictly more specific policy with a different result wins
	narrow := types.Policy{Key: key("app-A", "user-1", "camera"), Result: types.DenyResult()}
	if err := s.InsertOrUpdatePolicy(RootBucketID, narrow); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	result, _ = s.Check(q)
	if result.Type != types.TypeDeny {
		t.Errorf("Expected DENY after refinement, got %v", result.Type)
	}

	// Removing it restores the broad result
	if err := s.DeletePolicy(RootBucketID, narrow.Key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	result, _ = s.Check(q)
	if result.Type != types.TypeAllow {
		t.Errorf("Expected ALLOW after removal, got %v", result.Type)
	}
}

func TestBucketRedirectScenario(t *testing.T) {
	s := newTestStorage(t)

	if err := s.InsertOrUpdateBucket("cam", types.DenyResult()); err != nil {
		t.Fatalf("InsertOrUpdateBucket failed: %v", err)
	}
	if err := s.InsertOrUpdatePolicy("cam", types.Policy{
		Key: key("app-A", "*", "*"), Result: types.AllowResult(),
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := s.InsertOrUpdatePolicy(RootBucketID, types.Policy{
		Key: key("*", "*", "camera"), Result: types.BucketResult("cam"),
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	result, _ := s.Check(key("app-A", "u", "camera"))
	if result.Type != types.TypeAllow {
		t.Errorf("Expected ALLOW via redirect, got %v", result.Type)
	}
	result, _ = s.Check(key("app-B", "u", "camera"))
	if result.Type != types.TypeDeny {
		t.Errorf("Expected DENY via redirect default, got %v", result.Type)
	}
}

func TestInsertPolicyDanglingBucket(t *testing.T) {
	s := newTestStorage(t)

	err := s.InsertOrUpdatePolicy(RootBucketID, types.Policy{
		Key: key("*", "*", "*"), Result: types.BucketResult("missing"),
	})
	if !errors.IsErrorCode(err, errors.ErrBucketNotFound) {
		t.Errorf("Expected bucket-not-found error, got %v", err)
	}
}

func TestDeleteBucketInvariants(t *testing.T) {
	s := newTestStorage(t)

	if err := s.DeleteBucket(RootBucketID, false); !errors.IsErrorCode(err, errors.ErrDefaultBucketDelete) {
		t.Errorf("Expected root delete refusal, got %v", err)
	}

	if err := s.InsertOrUpdateBucket("cam", types.DenyResult()); err != nil {
		t.Fatalf("InsertOrUpdateBucket failed: %v", err)
	}
	if err := s.InsertOrUpdatePolicy(RootBucketID, types.Policy{
		Key: key("*", "*", "camera"), Result: types.BucketResult("cam"),
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := s.DeleteBucket("cam", false); !errors.IsErrorCode(err, errors.ErrBucketReferenced) {
		t.Errorf("Expected referenced-bucket refusal, got %v", err)
	}

	// Recursive delete drops the bucket and the referencing policy
	if err := s.DeleteBucket("cam", true); err != nil {
		t.Fatalf("Recursive delete failed: %v", err)
	}
	if s.HasBucket("cam") {
		t.Error("Expected bucket to be gone")
	}
	policies, err := s.ListPolicies(RootBucketID, key("*", "*", "*"))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(policies) != 0 {
		t.Errorf("Expected referencing policy removed, found %d policies", len(policies))
	}
}

func TestEraseFilter(t *testing.T) {
	s := newTestStorage(t)

	if err := s.InsertOrUpdateBucket("sub", types.DenyResult()); err != nil {
		t.Fatalf("InsertOrUpdateBucket failed: %v", err)
	}
	seed := []struct {
		bucket string
		p      types.Policy
	}{
		{RootBucketID, types.Policy{Key: key("app-A", "u1", "camera"), Result: types.AllowResult()}},
		{RootBucketID, types.Policy{Key: key("app-B", "u1", "camera"), Result: types.AllowResult()}},
		{RootBucketID, types.Policy{Key: key("app-A", "u2", "mic"), Result: types.AllowResult()}},
		{RootBucketID, types.Policy{Key: key("*", "*", "redirect"), Result: types.BucketResult("sub")}},
		{"sub", types.Policy{Key: key("app-A", "u1", "location"), Result: types.AllowResult()}},
	}
	for _, sp := range seed {
		if err := s.InsertOrUpdatePolicy(sp.bucket, sp.p); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	// Non-recursive erase touches only the start bucket
	if err := s.Erase(RootBucketID, false, key("app-A", "*", "*")); err != nil {
		t.Fatalf("Erase failed: %v", err)
	}
	rootLeft, _ := s.ListPolicies(RootBucketID, key("*", "*", "*"))
	if len(rootLeft) != 2 {
		t.Errorf("Expected 2 root policies left, got %d", len(rootLeft))
	}
	subLeft, _ := s.ListPolicies("sub", key("*", "*", "*"))
	if len(subLeft) != 1 {
		t.Errorf("Expected sub policy untouched, got %d", len(subLeft))
	}

	// Recursive erase follows the redirect into sub
	if err := s.Erase(RootBucketID, true, key("app-A", "*", "*")); err != nil {
		t.Fatalf("Erase failed: %v", err)
	}
	subLeft, _ = s.ListPolicies("sub", key("*", "*", "*"))
	if len(subLeft) != 0 {
		t.Errorf("Expected sub policy erased, got %d", len(subLeft))
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := s.InsertOrUpdateBucket("cam", types.PolicyResult{Type: types.TypeNone}); err != nil {
		t.Fatalf("InsertOrUpdateBucket failed: %v", err)
	}
	if err := s.InsertOrUpdatePolicy("cam", types.Policy{
		Key: key("app-A", "*", "*"), Result: types.PolicyResult{Type: types.PolicyType(0x10), Metadata: "ask-user"},
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := s.InsertOrUpdatePolicy(RootBucketID, types.Policy{
		Key: key("*", "*", "camera"), Result: types.BucketResult("cam"),
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// A second storage over the same directory must see identical contents
	s2, err := New(dir)
	if err != nil {
		t.Fatalf("Failed to create second storage: %v", err)
	}
	if err := s2.Load(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	for _, bucketID := range s.backend.BucketIDs() {
		want, _ := s.backend.Bucket(bucketID)
		got, ok := s2.backend.Bucket(bucketID)
		if !ok {
			t.Fatalf("Bucket %q missing after reload", bucketID)
		}
		if !reflect.DeepEqual(want, got) {
			t.Errorf("Bucket %q differs after reload:\n got %#v\nwant %#v", bucketID, got, want)
		}
	}
}

func TestChecksumTamperDetected(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := s.InsertOrUpdatePolicy(RootBucketID, types.Policy{
		Key: key("app-A", "user-1", "camera"), Result: types.AllowResult(),
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Strip one character from the root bucket file without updating checksums
	rootFile := filepath.Join(dir, liveDirName, BucketFilePrefix)
	data, err := os.ReadFile(rootFile)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if err := os.WriteFile(rootFile, data[:len(data)-1], 0600); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	s2, err := New(dir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	loadErr := s2.Load()
	if !errors.IsErrorCode(loadErr, errors.ErrDatabaseCorrupted) {
		t.Fatalf("Expected corruption error, got %v", loadErr)
	}
	if kind, ok := errors.GetCorruptionKind(loadErr); !ok || kind != errors.CorruptionChecksum {
		t.Errorf("Expected checksum corruption kind, got %v", kind)
	}

	// Degraded mode: empty read-only database
	if !s2.Corrupted() {
		t.Error("Expected storage to be in degraded mode")
	}
	result, err := s2.Check(key("app-A", "user-1", "camera"))
	if err != nil {
		t.Fatalf("Degraded check failed: %v", err)
	}
	if result.Type != types.TypeDeny {
		t.Errorf("Expected DENY from empty degraded database, got %v", result.Type)
	}
	err = s2.InsertOrUpdateBucket("x", types.DenyResult())
	if !errors.IsErrorCode(err, errors.ErrDatabaseReadOnly) {
		t.Errorf("Expected read-only refusal, got %v", err)
	}
}

func TestChsgenRepairsTamper(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	live := filepath.Join(dir, liveDirName)

	// Hand-edit the root bucket file, then regenerate checksums
	rootFile := filepath.Join(live, BucketFilePrefix)
	line := "app-A;user-1;camera;0xFFFF;\n"
	if err := os.WriteFile(rootFile, []byte(line), 0600); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := VerifyChecksums(live); err == nil {
		t.Fatal("Expected verification to fail after hand edit")
	}
	if err := WriteChecksums(live); err != nil {
		t.Fatalf("WriteChecksums failed: %v", err)
	}
	if err := VerifyChecksums(live); err != nil {
		t.Fatalf("Expected verification to pass after chsgen, got %v", err)
	}

	s2, err := New(dir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	if err := s2.Load(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	result, err := s2.Check(key("app-A", "user-1", "camera"))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if result.Type != types.TypeAllow {
		t.Errorf("Expected hand-edited ALLOW policy, got %v", result.Type)
	}
}

func TestCheckFromNonRecursive(t *testing.T) {
	s := newTestStorage(t)

	if err := s.InsertOrUpdateBucket("cam", types.AllowResult()); err != nil {
		t.Fatalf("InsertOrUpdateBucket failed: %v", err)
	}
	if err := s.InsertOrUpdatePolicy(RootBucketID, types.Policy{
		Key: key("*", "*", "camera"), Result: types.BucketResult("cam"),
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Non-recursive: the redirect is not followed
	result, err := s.CheckFrom(RootBucketID, false, key("c", "u", "camera"))
	if err != nil {
		t.Fatalf("CheckFrom failed: %v", err)
	}
	if result.Type != types.TypeNone {
		t.Errorf("Expected NONE for unfollowed redirect, got %v", result.Type)
	}

	// Recursive: redirect is followed to cam's default
	result, err = s.CheckFrom(RootBucketID, true, key("c", "u", "camera"))
	if err != nil {
		t.Fatalf("CheckFrom failed: %v", err)
	}
	if result.Type != types.TypeAllow {
		t.Errorf("Expected ALLOW via redirect, got %v", result.Type)
	}
}

func TestRecoverFromBackup(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := s.InsertOrUpdatePolicy(RootBucketID, types.Policy{
		Key: key("a", "b", "c"), Result: types.AllowResult(),
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Simulate a crash between moving the live generation aside and
	// activating the new one
	live := filepath.Join(dir, liveDirName)
	if err := os.Rename(live, live+".backup"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	s2, err := New(dir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	if err := s2.Load(); err != nil {
		t.Fatalf("Recovery load failed: %v", err)
	}
	result, err := s2.Check(key("a", "b", "c"))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if result.Type != types.TypeAllow {
		t.Errorf("Expected recovered ALLOW policy, got %v", result.Type)
	}
}
