package cache

import "strings"

// Kind names a family of cached subjects. Kinds never contain ':'.
type Kind string

const (
	// KindHash keys memoized full-round hashes by their single-round hash.
	KindHash Kind = "shaHash"
	// KindUserFeature keys per-user feature flags.
	KindUserFeature Kind = "userFeature"
	// KindVideoDetails keys external video metadata by video ID.
	KindVideoDetails Kind = "videoDetails"
)

const keySep = ":"

var partEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// SubjectKey builds "<kind>:<part>:<part>..." with ':' and '%' escaped in
// every part, so distinct (kind, parts) tuples never produce the same key.
func SubjectKey(kind Kind, parts ...string) string {
	var b strings.Builder
	b.WriteString(string(kind))
	for _, p := range parts {
		b.WriteString(keySep)
		b.WriteString(partEscaper.Replace(p))
	}
	return b.String()
}

// HashKey is the cache key for a memoized hash. singleRound must already
// be a one-round hash; raw values never reach the backend.
func HashKey(singleRound string) string {
	return SubjectKey(KindHash, singleRound)
}

func UserFeatureKey(userID, feature string) string {
	return SubjectKey(KindUserFeature, userID, feature)
}

func VideoDetailsKey(videoID string) string {
	return SubjectKey(KindVideoDetails, videoID)
}

// KindOf returns the kind prefix of a key built by SubjectKey.
func KindOf(key string) Kind {
	kind, _, _ := strings.Cut(key, keySep)
	return Kind(kind)
}
