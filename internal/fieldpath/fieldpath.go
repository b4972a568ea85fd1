// Package fieldpath resolves slash-delimited paths over DynamoDB attribute maps.
package fieldpath

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// IsBlank reports whether path is unset (empty or whitespace only).
func IsBlank(path string) bool {
	return strings.TrimSpace(path) == ""
}

// Segments splits path on "/" and drops empty segments.
// "/Customer//Region/" yields ["Customer", "Region"].
func Segments(path string) []string {
	parts := strings.Split(path, "/")
	segments := parts[:0]
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// Resolve walks path through tree and returns the value found there.
// A blank path, a nil tree, a missing segment or a non-map intermediate
// value all resolve to (nil, false).
func Resolve(tree map[string]types.AttributeValue, path string) (types.AttributeValue, bool) {
	if tree == nil || IsBlank(path) {
		return nil, false
	}

	segments := Segments(path)
	if len(segments) == 0 {
		return nil, false
	}

	var value types.AttributeValue = &types.AttributeValueMemberM{Value: tree}
	for _, segment := range segments {
		m, ok := value.(*types.AttributeValueMemberM)
		if !ok || m == nil {
			return nil, false
		}
		value, ok = m.Value[segment]
		if !ok || value == nil {
			return nil, false
		}
	}

	// An explicit NULL counts as absent, the same as a missing member.
	if _, isNull := value.(*types.AttributeValueMemberNULL); isNull {
		return nil, false
	}
	return value, true
}
