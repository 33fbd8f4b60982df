// Package ids mints the opaque identifiers used across the sync protocol.
package ids

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const (
	// PublicIDLength длина публичного идентификатора строки
	PublicIDLength = 12
	// PublicIDAlphabet алфавит публичных идентификаторов (без похожих символов)
	PublicIDAlphabet = "6789BCDFGHJKLMNPQRTWbcdfghjkmnpqrtwz"
)

// NewEntityID returns a server-assigned row id. ULIDs sort by creation time,
// which keeps sqlite primary key inserts append-mostly.
func NewEntityID() string {
	return strings.ToLower(ulid.Make().String())
}

// NewPublicID returns a random client-visible identifier.
func NewPublicID() (string, error) {
	max := big.NewInt(int64(len(PublicIDAlphabet)))
	var b strings.Builder
	b.Grow(PublicIDLength)

	for i := 0; i < PublicIDLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate public id: %w", err)
		}
		b.WriteByte(PublicIDAlphabet[n.Int64()])
	}

	return b.String(), nil
}

// NewCVRID returns an opaque CVR key.
func NewCVRID() string {
	return uuid.New().String()
}

// NewClientID returns an id for a client or client group.
func NewClientID() string {
	return uuid.New().String()
}
