package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

// parsePolicyType accepts the predefined type names or a numeric value
// (decimal or 0x-prefixed hex) for plugin types
func parsePolicyType(s string) (types.PolicyType, error) {
	switch strings.ToLower(s) {
	case "deny":
		return types.TypeDeny, nil
	case "none":
		return types.TypeNone, nil
	case "bucket":
		return types.TypeBucket, nil
	case "allow":
		return types.TypeAllow, nil
	}
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown policy type %q", s)
	}
	return types.PolicyType(v), nil
}

// parseResult builds a result from a type string and optional metadata
func parseResult(typeStr, metadata string) (types.PolicyResult, error) {
	pt, err := parsePolicyType(typeStr)
	if err != nil {
		return types.PolicyResult{}, err
	}
	if pt == types.TypeBucket && metadata == "" {
		return types.PolicyResult{}, fmt.Errorf("BUCKET results need the target bucket as metadata")
	}
	return types.PolicyResult{Type: pt, Metadata: metadata}, nil
}

// formatPolicy renders one policy for listings
func formatPolicy(p types.Policy) string {
	line := fmt.Sprintf("%s;%s;%s -> %s", p.Key.Client, p.Key.User, p.Key.Privilege, p.Result.Type)
	if p.Result.Metadata != "" {
		line += fmt.Sprintf(" (%s)", p.Result.Metadata)
	}
	return line
}
