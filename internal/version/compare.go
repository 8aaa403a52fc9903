package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CheckStoreCompatibility reports whether a binary at binaryVersion may open a store last
// written by storeVersion.
//
// Rules:
//   - "main" on either side skips the check
//   - major versions must match
//   - a store written by a newer minor release is refused; older minors are upgraded in place
//   - patch versions never matter
//
// Examples:
//   - binary 1.2.0, store 1.2.7 -> OK
//   - binary 1.3.0, store 1.2.0 -> OK (older store)
//   - binary 1.2.0, store 1.3.0 -> ERROR (newer store)
//   - binary 2.0.0, store 1.9.0 -> ERROR (major differs)
func CheckStoreCompatibility(binaryVersion, storeVersion string) error {
	binaryVersion = strings.TrimPrefix(binaryVersion, "v")
	storeVersion = strings.TrimPrefix(storeVersion, "v")

	if binaryVersion == "main" || storeVersion == "main" {
		return nil
	}

	binary, err := semver.NewVersion(binaryVersion)
	if err != nil {
		return fmt.Errorf("invalid binary version '%s': %w", binaryVersion, err)
	}

	store, err := semver.NewVersion(storeVersion)
	if err != nil {
		return fmt.Errorf("invalid store version '%s': %w", storeVersion, err)
	}

	if binary.Major() != store.Major() {
		return fmt.Errorf("major version mismatch: binary is %d.x.x but the store was written by %d.x.x",
			binary.Major(), store.Major())
	}

	if store.Minor() > binary.Minor() {
		return fmt.Errorf("store was written by %d.%d.x, newer than this binary (%d.%d.x)",
			store.Major(), store.Minor(), binary.Major(), binary.Minor())
	}

	return nil
}
