package store

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingMetadata reports a listing entry that violates the store
// contract by omitting its size or last-modified time.
var ErrMissingMetadata = errors.New("listing entry missing size or last-modified")

// Object describes one listed object. Size and LastModified are always
// set; a listing entry without them fails the page instead of producing
// a partial Object.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Page is one page of listing results. NextToken is nil on the final
// page.
type Page struct {
	Objects   []Object
	NextToken *string
}

// Part identifies one completed part of a chunked upload. The store
// assigns the ETag; it is never fabricated client-side.
type Part struct {
	Number int32
	ETag   string
}

// KeyError describes a per-key failure inside a batch delete response.
type KeyError struct {
	Key     string
	Code    string
	Message string
}

func (e KeyError) Error() string {
	return fmt.Sprintf("delete %q: %s: %s", e.Key, e.Code, e.Message)
}
