package tree

import (
	"github.com/google/uuid"

	"github.com/GunterMueller/Leda-Language/internal/config"
)

// GenerateTemporaryName produces a name for a lowering-introduced local
// (a desugared loop's closure slot, a match's scrutinee) that cannot
// collide with any user identifier. config.UniqueTempNames gates the
// uuid suffix so golden-output tests can run with deterministic names
// (config.IsTestMode sets it false); production compilation leaves it
// on.
func GenerateTemporaryName(prefix string) string {
	if !config.UniqueTempNames {
		return "$" + prefix
	}
	return "$" + prefix + "$" + uuid.NewString()
}
