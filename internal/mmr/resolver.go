package mmr

// NewMatchIDs determines which of a player's remote matches still need to be
// replayed. remoteIDs is the provider's window, newest first; lastProcessed
// is the player's watermark (empty for a fresh player).
//
// The scan walks newest to oldest and stops at the watermark, exclusive, so
// only strictly newer matches are returned. The result is reversed to oldest
// first so replay preserves the causal order of rating updates.
//
// If the watermark has aged out of the provider's window the whole window is
// treated as new. That can re-settle matches already folded in under the old
// watermark; the per-player commit guard downstream keeps it from corrupting
// state, but the duplication itself is unresolved upstream.
func NewMatchIDs(remoteIDs []string, lastProcessed string) []string {
	if lastProcessed == "" {
		return reversed(remoteIDs)
	}

	var fresh []string
	for _, id := range remoteIDs {
		if id == lastProcessed {
			break
		}
		fresh = append(fresh, id)
	}

	return reversed(fresh)
}

func reversed(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}
