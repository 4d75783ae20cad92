package types

import (
	"fmt"
	"strings"
	"time"
)

// Wildcard is the token matching any literal value in a key component
const Wildcard = "*"

// MaxIDLength is the maximum length of a key component or bucket id
const MaxIDLength = 255

// PolicyType tags how a policy result is to be interpreted
type PolicyType uint16

const (
	// TypeDeny denies the access outright
	TypeDeny PolicyType = 0x0000
	// TypeNone is a bucket-default-only marker meaning "no decision"
	TypeNone PolicyType = 0x0001
	// TypeBucket redirects evaluation to another bucket
	TypeBucket PolicyType = 0xFFFE
	// TypeAllow allows the access outright
	TypeAllow PolicyType = 0xFFFF
)

// IsPredefined reports whether t is one of the four reserved types
func (t PolicyType) IsPredefined() bool {
	switch t {
	case TypeDeny, TypeNone, TypeBucket, TypeAllow:
		return true
	}
	return false
}

// IsPluginType reports whether t must be interpreted by a registered plugin
func (t PolicyType) IsPluginType() bool {
	return !t.IsPredefined()
}

// String returns the human-readable name of a policy type
func (t PolicyType) String() string {
	switch t {
	case TypeDeny:
		return "DENY"
	case TypeNone:
		return "NONE"
	case TypeBucket:
		return "BUCKET"
	case TypeAllow:
		return "ALLOW"
	default:
		return fmt.Sprintf("0x%04X", uint16(t))
	}
}

// PolicyKey identifies the subject of a policy as a (client, user, privilege)
// triple. Each component is a literal or the Wildcard token.
type PolicyKey struct {
	Client    string
	User      string
	Privilege string
}

// NewPolicyKey creates a policy key from its three components
func NewPolicyKey(client, user, privilege string) PolicyKey {
	return PolicyKey{Client: client, User: user, Privilege: privilege}
}

// String renders the key for logs and cache keys. The 0x1F unit separator
// cannot occur in a valid component, so the rendering is unambiguous.
func (k PolicyKey) String() string {
	return k.Client + "\x1f" + k.User + "\x1f" + k.Privilege
}

// Specificity counts the non-wildcard components of the key
func (k PolicyKey) Specificity() int {
	n := 0
	for _, c := range []string{k.Client, k.User, k.Privilege} {
		if c != Wildcard {
			n++
		}
	}
	return n
}

// Matches reports whether the key, treated as a pattern, covers query.
// A component matches when it equals the query component or is the wildcard.
func (k PolicyKey) Matches(query PolicyKey) bool {
	return matchComponent(k.Client, query.Client) &&
		matchComponent(k.User, query.User) &&
		matchComponent(k.Privilege, query.Privilege)
}

func matchComponent(pattern, value string) bool {
	return pattern == Wildcard || pattern == value
}

// Less orders keys lexicographically by (client, user, privilege)
func (k PolicyKey) Less(other PolicyKey) bool {
	if k.Client != other.Client {
		return k.Client < other.Client
	}
	if k.User != other.User {
		return k.User < other.User
	}
	return k.Privilege < other.Privilege
}

// Validate checks every component of the key
func (k PolicyKey) Validate() error {
	for _, c := range []string{k.Client, k.User, k.Privilege} {
		if !IsStringValid(c) {
			return fmt.Errorf("invalid key component %q", c)
		}
	}
	return nil
}

// PolicyResult is the outcome carried by a policy or a bucket default
type PolicyResult struct {
	Type     PolicyType
	Metadata string
}

// DenyResult is the implicit default of a freshly created store
func DenyResult() PolicyResult {
	return PolicyResult{Type: TypeDeny}
}

// AllowResult is a plain ALLOW outcome
func AllowResult() PolicyResult {
	return PolicyResult{Type: TypeAllow}
}

// NoneResult is the fall-through outcome
func NoneResult() PolicyResult {
	return PolicyResult{Type: TypeNone}
}

// BucketResult redirects evaluation to the named bucket
func BucketResult(bucketID string) PolicyResult {
	return PolicyResult{Type: TypeBucket, Metadata: bucketID}
}

// Policy binds a key to a result inside one bucket
type Policy struct {
	Key    PolicyKey
	Result PolicyResult
}

// PolicyBucket is a named set of policies plus a default result
type PolicyBucket struct {
	ID       string
	Default  PolicyResult
	Policies map[string]Policy
}

// NewBucket creates an empty bucket with the given default
func NewBucket(id string, def PolicyResult) *PolicyBucket {
	return &PolicyBucket{
		ID:       id,
		Default:  def,
		Policies: make(map[string]Policy),
	}
}

// Set inserts or replaces the policy for p.Key
func (b *PolicyBucket) Set(p Policy) {
	b.Policies[p.Key.String()] = p
}

// Get returns the policy stored under key, if any
func (b *PolicyBucket) Get(key PolicyKey) (Policy, bool) {
	p, ok := b.Policies[key.String()]
	return p, ok
}

// Delete removes the policy stored under key
func (b *PolicyBucket) Delete(key PolicyKey) bool {
	s := key.String()
	if _, ok := b.Policies[s]; !ok {
		return false
	}
	delete(b.Policies, s)
	return true
}

// MonitorEntry records one answered check for the monitoring buffer
type MonitorEntry struct {
	Key       PolicyKey
	Result    PolicyType
	Timestamp time.Time
}

// IsStringValid reports whether s is usable as a key component. The record
// separator and line breaks are excluded so the persisted form stays parseable.
func IsStringValid(s string) bool {
	if len(s) == 0 || len(s) > MaxIDLength {
		return false
	}
	return !strings.ContainsAny(s, ";\n\x1f")
}

// IsExtraStringValid reports whether s is usable as optional metadata
func IsExtraStringValid(s string) bool {
	return len(s) <= MaxIDLength
}

// ValidateBucketID checks the bucket-id grammar: at most MaxIDLength printable
// bytes, none of which is the record separator or a control character. The
// empty string names the root bucket and is always valid.
func ValidateBucketID(id string) error {
	if len(id) > MaxIDLength {
		return fmt.Errorf("bucket id longer than %d bytes", MaxIDLength)
	}
	if strings.ContainsRune(id, ';') {
		return fmt.Errorf("bucket id %q contains the record separator", id)
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7F {
			return fmt.Errorf("bucket id %q contains a control character", id)
		}
	}
	return nil
}
