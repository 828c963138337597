package session

import "github.com/oklog/ulid/v2"

// newID generates a session identifier for callers that do not supply one.
// ULIDs sort by creation time, which keeps listings readable.
func newID() string {
	return "sess_" + ulid.Make().String()
}
