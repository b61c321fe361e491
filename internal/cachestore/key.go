package cachestore

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"time"
)

// Key identifies one reusable stage output.
type Key struct {
	Stage       string
	Fingerprint string
	// Language is set only for stages whose output depends on the target language.
	Language string
}

// String renders the key as stage/fingerprint[/language].
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.Stage)
	b.WriteByte('/')
	b.WriteString(k.Fingerprint)
	if k.Language != "" {
		b.WriteByte('/')
		b.WriteString(k.Language)
	}
	return b.String()
}

// Valid reports whether the key can be stored.
func (k Key) Valid() bool {
	return strings.TrimSpace(k.Stage) != "" && len(k.Fingerprint) >= 2
}

// Fingerprint hashes the normalized stage inputs. Parts are length-prefixed so
// ("ab", "c") and ("a", "bc") never collide.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	var size [8]byte
	for _, part := range parts {
		binary.BigEndian.PutUint64(size[:], uint64(len(part)))
		h.Write(size[:])
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Artifact is a cached stage output.
type Artifact struct {
	Key        Key
	Path       string
	SizeBytes  int64
	Meta       map[string]string
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// MetaValue returns a metadata entry or "".
func (a Artifact) MetaValue(name string) string {
	if a.Meta == nil {
		return ""
	}
	return a.Meta[name]
}
