package media

import (
	"fmt"
	"strings"
)

// Tier is a fixed thumbnail size class.
type Tier string

const (
	TierSmall  Tier = "SMALL"
	TierMedium Tier = "MEDIUM"
	TierBig    Tier = "BIG"
)

// AllTiers lists every tier in ascending size order.
var AllTiers = []Tier{TierSmall, TierMedium, TierBig}

// Size returns the bounding box edge in pixels. Thumbnails fit inside a
// Size x Size square and keep the source aspect ratio.
func (t Tier) Size() int {
	switch t {
	case TierSmall:
		return 150
	case TierMedium:
		return 300
	case TierBig:
		return 600
	default:
		return 0
	}
}

// Valid reports whether t is one of AllTiers.
func (t Tier) Valid() bool {
	return t.Size() > 0
}

func (t Tier) String() string { return string(t) }

// ParseTier accepts a tier name in any case.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown thumbnail type %q", s)
	}
	return t, nil
}
