package store

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/topolane/topolane/internal/apierr"
)

// cursorPayload is the opaque state carried inside a pagination cursor: a
// hash of the filter that produced it plus the offset to resume from.
type cursorPayload struct {
	FilterHash string `json:"h"`
	Offset     int    `json:"o"`
}

// HashFilter derives a stable fingerprint for any filter value so a cursor
// minted for one filter is rejected when replayed against another.
func HashFilter(filter any) string {
	b, err := json.Marshal(filter)
	if err != nil {
		// filters are plain structs of comparable fields; marshal failure
		// would be a programming error, not a runtime condition to recover from.
		panic(fmt.Sprintf("store: filter is not marshalable: %v", err))
	}
	sum := sha256.Sum256(b)
	return base64.RawURLEncoding.EncodeToString(sum[:8])
}

// EncodeCursor mints an opaque cursor for the given filter hash and offset.
func EncodeCursor(filterHash string, offset int) string {
	b, _ := json.Marshal(cursorPayload{FilterHash: filterHash, Offset: offset})
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor validates cursor against the current filter hash and returns
// the offset to resume from. An empty cursor decodes to offset 0.
func DecodeCursor(cursor, filterHash string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, apierr.Wrap(apierr.KindInvalidCursor, "malformed cursor", err)
	}
	var p cursorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return 0, apierr.Wrap(apierr.KindInvalidCursor, "malformed cursor", err)
	}
	if p.FilterHash != filterHash {
		return 0, apierr.New(apierr.KindInvalidCursor, "cursor was minted for a different filter")
	}
	if p.Offset < 0 {
		return 0, apierr.New(apierr.KindInvalidCursor, "cursor offset is negative")
	}
	return p.Offset, nil
}
