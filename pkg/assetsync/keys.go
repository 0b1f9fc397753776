package assetsync

import (
	"strings"
	"unicode/utf8"
)

// MaxKeyLength is the longest object key accepted, in bytes.
const MaxKeyLength = 1024

// ValidateKey checks that key is a relative, "/"-delimited object path.
func ValidateKey(key string) error {
	return validatePath("key", key, false)
}

// ValidatePrefix checks a listing or search prefix. The empty prefix and a
// trailing "/" are allowed.
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return nil
	}
	return validatePath("prefix", prefix, true)
}

func validatePath(field, p string, allowTrailingSlash bool) error {
	if p == "" {
		return newValidationError(field, "must not be empty")
	}
	if len(p) > MaxKeyLength {
		return newValidationError(field, "must be at most %d bytes", MaxKeyLength)
	}
	if !utf8.ValidString(p) {
		return newValidationError(field, "must be valid UTF-8")
	}
	if p[0] == '/' {
		return newValidationError(field, "must not start with /")
	}
	if strings.ContainsRune(p, '\\') {
		return newValidationError(field, "must not contain backslashes")
	}
	for _, r := range p {
		if r < 0x20 || r == 0x7f {
			return newValidationError(field, "must not contain control characters")
		}
	}

	segments := strings.Split(p, "/")
	if allowTrailingSlash && segments[len(segments)-1] == "" {
		segments = segments[:len(segments)-1]
	}
	for _, seg := range segments {
		switch seg {
		case "":
			return newValidationError(field, "must not contain empty segments")
		case ".", "..":
			return newValidationError(field, "must not contain %q segments", seg)
		}
	}
	return nil
}

// DeriveOwnerID returns the first segment of key, or nil when the key has a
// single segment.
func DeriveOwnerID(key string) *string {
	parts := strings.Split(key, "/")
	if len(parts) < 2 || parts[0] == "" {
		return nil
	}
	return &parts[0]
}

// DeriveFolder returns the second segment of key when the key has three or
// more segments, else nil.
func DeriveFolder(key string) *string {
	parts := strings.Split(key, "/")
	if len(parts) < 3 || parts[1] == "" {
		return nil
	}
	return &parts[1]
}

// EscapeLikePattern escapes LIKE metacharacters so pattern matches literally.
// The escape character is a backslash.
func EscapeLikePattern(pattern string) string {
	pattern = strings.ReplaceAll(pattern, `\`, `\\`)
	pattern = strings.ReplaceAll(pattern, `%`, `\%`)
	pattern = strings.ReplaceAll(pattern, `_`, `\_`)
	return pattern
}

// PrefixPattern returns a LIKE pattern matching every key that starts with prefix.
func PrefixPattern(prefix string) string {
	return EscapeLikePattern(prefix) + "%"
}
