// Package cursor encodes keyset pagination positions as opaque tokens.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

// ErrInvalid is returned for any token that cannot be decoded back into a
// position. Callers restart pagination for the affected level.
var ErrInvalid = errors.New("invalid cursor")

// Position marks the spot immediately after a comment in the stable
// (created_at, id) ordering.
type Position struct {
	CreatedAt time.Time
	ID        string
}

type wireCursor struct {
	T  int64  `json:"t"`
	ID string `json:"id"`
}

func Encode(p Position) string {
	raw, _ := json.Marshal(wireCursor{T: p.CreatedAt.UnixMicro(), ID: p.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func Decode(token string) (Position, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Position{}, ErrInvalid
	}
	var w wireCursor
	if err := json.Unmarshal(raw, &w); err != nil {
		return Position{}, ErrInvalid
	}
	if w.T <= 0 || w.ID == "" {
		return Position{}, ErrInvalid
	}
	return Position{CreatedAt: time.UnixMicro(w.T).UTC(), ID: w.ID}, nil
}
