package identity

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	berlin = time.FixedZone("CET", 3600)
	start  = time.Date(2025, 3, 12, 10, 0, 0, 0, berlin)
	end    = time.Date(2025, 3, 12, 11, 30, 0, 0, berlin)
)

func TestComputeIsDeterministic(t *testing.T) {
	a := Compute(start, end, "Gartenstr. 5, 12345 Musterstadt", "Hausbesuch Müller")
	b := Compute(start, end, "Gartenstr. 5, 12345 Musterstadt", "Hausbesuch Müller")

	assert.Equal(t, a, b)
	assert.True(t, strings.HasSuffix(a, Suffix))
	// 160-bit digest in hex
	assert.Len(t, strings.TrimSuffix(a, Suffix), 40)
}

func TestComputeIgnoresAttachedZone(t *testing.T) {
	a := Compute(start, end, "", "Einsatz")
	b := Compute(start.UTC(), end.UTC(), "", "Einsatz")
	assert.Equal(t, a, b)
}

func TestComputeChangesWithEveryField(t *testing.T) {
	base := Compute(start, end, "Gartenstr. 5", "Hausbesuch")

	variants := map[string]string{
		"start":   Compute(start.Add(time.Minute), end, "Gartenstr. 5", "Hausbesuch"),
		"end":     Compute(start, end.Add(time.Minute), "Gartenstr. 5", "Hausbesuch"),
		"no end":  Compute(start, time.Time{}, "Gartenstr. 5", "Hausbesuch"),
		"address": Compute(start, end, "Gartenstr. 7", "Hausbesuch"),
		"title":   Compute(start, end, "Gartenstr. 5", "Hausbesuch Müller"),
	}
	for field, got := range variants {
		assert.NotEqual(t, base, got, field)
	}
}

func TestComputeKnownValue(t *testing.T) {
	// sha1("2025-03-12T09:00:00+00:00|2025-03-12T10:30:00+00:00||Einsatz")
	got := Compute(start, end, "", "Einsatz")
	assert.Equal(t, "08d5607ad5f67f2484289177833c8acafb9f50a3-heimbas", got)
}
