package retention

import (
	"strings"

	"github.com/younsl/snapshooter/internal/models"
)

// DefaultTrueTokens are the metadata values accepted as "true"
var DefaultTrueTokens = []string{"true", "yes", "y", "1"}

// ParseBool reports whether value matches one of tokens, ignoring case and
// surrounding whitespace
func ParseBool(tokens []string, value string) bool {
	value = strings.TrimSpace(value)
	for _, token := range tokens {
		if strings.EqualFold(token, value) {
			return true
		}
	}
	return false
}

// IsEligible reports whether a volume takes part in the creation pass: it
// must be available or in-use and opted in through automatic_snapshots.
func IsEligible(volume models.Volume, tokens []string) bool {
	switch volume.Status {
	case models.VolumeStatusAvailable, models.VolumeStatusInUse:
	default:
		return false
	}
	return ParseBool(tokens, volume.Metadata[models.MetadataAutomaticSnapshots])
}
