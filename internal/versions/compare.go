package versions

import "github.com/Masterminds/semver/v3"

// IsNewerVersion reports whether newVersion is strictly greater than
// oldVersion. Release tags that parse as semantic versions are compared
// semantically; anything else falls back to lexicographic comparison.
func IsNewerVersion(newVersion, oldVersion string) bool {
	newSemver, errNew := semver.NewVersion(newVersion)
	oldSemver, errOld := semver.NewVersion(oldVersion)

	if errNew != nil || errOld != nil {
		// Fallback to string comparison if semver parsing fails
		return newVersion > oldVersion
	}

	return newSemver.GreaterThan(oldSemver)
}

// Latest returns the highest release tag from tags, or an empty string when
// tags is empty. Ordering follows IsNewerVersion.
func Latest(tags []string) string {
	latest := ""
	for _, tag := range tags {
		if latest == "" || IsNewerVersion(tag, latest) {
			latest = tag
		}
	}
	return latest
}
