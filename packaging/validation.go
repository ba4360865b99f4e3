package packaging

import (
	"fmt"

	"github.com/willibrandon/gonpm/core"
)

// ValidatePackageName rejects names that cannot be installed into a flat
// root without escaping it.
func ValidatePackageName(name string) error {
	if !core.ValidPackageName(name) {
		return fmt.Errorf("%w: package name %q", ErrInvalidPath, name)
	}
	return nil
}
