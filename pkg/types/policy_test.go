package types

import (
	"testing"
)

func TestPolicyTypePredefined(t *testing.T) {
	for _, pt := range []PolicyType{TypeDeny, TypeNone, TypeBucket, TypeAllow} {
		if !pt.IsPredefined() {
			t.Errorf("Expected %v to be predefined", pt)
		}
		if pt.IsPluginType() {
			t.Errorf("Expected %v not to be a plugin type", pt)
		}
	}

	ask := PolicyType(0x0010)
	if ask.IsPredefined() {
		t.Error("Expected 0x0010 not to be predefined")
	}
	if !ask.IsPluginType() {
		t.Error("Expected 0x0010 to be a plugin type")
	}
}

func TestPolicyKeyMatches(t *testing.T) {
	query := NewPolicyKey("app-A", "user-1", "camera")

	tests := []struct {
		pattern PolicyKey
		want    bool
	}{
		{NewPolicyKey("app-A", "user-1", "camera"), true},
		{NewPolicyKey("*", "*", "*"), true},
		{NewPolicyKey("app-A", "*", "camera"), true},
		{NewPolicyKey("*", "user-1", "*"), true},
		{NewPolicyKey("app-B", "user-1", "camera"), false},
		{NewPolicyKey("app-A", "user-1", "mic"), false},
	}

	for _, tt := range tests {
		if got := tt.pattern.Matches(query); got != tt.want {
			t.Errorf("Matches(%v, %v) = %v, want %v", tt.pattern, query, got, tt.want)
		}
	}
}

func TestPolicyKeySpecificity(t *testing.T) {
	tests := []struct {
		key  PolicyKey
		want int
	}{
		{NewPolicyKey("*", "*", "*"), 0},
		{NewPolicyKey("app", "*", "*"), 1},
		{NewPolicyKey("app", "user", "*"), 2},
		{NewPolicyKey("app", "user", "priv"), 3},
	}

	for _, tt := range tests {
		if got := tt.key.Specificity(); got != tt.want {
			t.Errorf("Specificity(%v) = %d, want %d", tt.key, got, tt.want)
		}
	}
}

func TestPolicyKeyLess(t *testing.T) {
	a := NewPolicyKey("a", "b", "c")
	b := NewPolicyKey("a", "b", "d")
	if !a.Less(b) {
		t.Error("Expected a < b")
	}
	if b.Less(a) {
		t.Error("Expected !(b < a)")
	}
	if a.Less(a) {
		t.Error("Expected !(a < a)")
	}
}

func TestValidateBucketID(t *testing.T) {
	valid := []string{"", "cam", "bucket-1", "some_bucket.v2"}
	for _, id := range valid {
		if err := ValidateBucketID(id); err != nil {
			t.Errorf("ValidateBucketID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{"a;b", "line\nbreak", "tab\tseparated", "bell\x07"}
	for _, id := range invalid {
		if err := ValidateBucketID(id); err == nil {
			t.Errorf("ValidateBucketID(%q) = nil, want error", id)
		}
	}
}

func TestBucketSetGetDelete(t *testing.T) {
	b := NewBucket("test", DenyResult())

	key := NewPolicyKey("app", "user", "priv")
	b.Set(Policy{Key: key, Result: AllowResult()})

	p, ok := b.Get(key)
	if !ok {
		t.Fatal("Expected policy to be stored")
	}
	if p.Result.Type != TypeAllow {
		t.Errorf("Expected ALLOW, got %v", p.Result.Type)
	}

	if !b.Delete(key) {
		t.Error("Expected delete to report success")
	}
	if _, ok := b.Get(key); ok {
		t.Error("Expected policy to be gone")
	}
	if b.Delete(key) {
		t.Error("Expected second delete to report failure")
	}
}
