package store

import "github.com/google/uuid"

// ID prefixes
const (
	PrefixUser         = "user"
	PrefixPost         = "post"
	PrefixComment      = "cmt"
	PrefixNotification = "ntf"
)

// NewID returns a unique identifier such as "post_4b0e..."
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
