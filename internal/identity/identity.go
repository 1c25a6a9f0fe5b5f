// Package identity derives the stable identifier that makes repeated runs
// idempotent: the same schedule slot always hashes to the same value, across
// runs and processes, without any stored state.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
)

// Suffix is appended to every digest so identifiers from this tool are
// recognizable in foreign systems.
const Suffix = "-heimbas"

const (
	fieldSep   = "|"
	instantFmt = "2006-01-02T15:04:05.999999999-07:00"
)

// Compute hashes start, end, address and title. Instants are taken in UTC so
// the result does not depend on the zone a caller attached. A zero end is
// hashed as the empty string.
func Compute(start, end time.Time, address, title string) string {
	endText := ""
	if !end.IsZero() {
		endText = end.UTC().Format(instantFmt)
	}
	payload := strings.Join([]string{
		start.UTC().Format(instantFmt),
		endText,
		address,
		title,
	}, fieldSep)

	sum := sha1.Sum([]byte(payload))
	return hex.EncodeToString(sum[:]) + Suffix
}
