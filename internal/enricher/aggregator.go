package enricher

import "iter"

// LookupFunc resolves a stream id against the directory. ok is false on a
// miss.
type LookupFunc func(id StreamID) (name string, ok bool)

// Aggregate folds one cycle's observations into a Snapshot.
//
// Every feed row, user-labeled or not, adds its client count to the resolved
// channel. Rows with a user also count at least 1 towards their user and
// channel, and repeated rows for the same key keep the largest value instead
// of summing, so duplicate status lines for one session are not double
// counted. Status rows only feed the user family. Ids the lookup misses are grouped
// under UnknownLabel. The second return is the number of observations that
// missed.
func Aggregate(obs iter.Seq[Observation], lookup LookupFunc) (Snapshot, int) {
	snap := NewSnapshot()
	unresolved := 0

	for o := range obs {
		name, ok := lookup(o.StreamID)
		if !ok {
			name = UnknownLabel(o.StreamID)
			unresolved++
		}

		if !o.FromStatus {
			snap.Channels[name] += o.Clients
		}
		if o.User == "" {
			continue
		}

		n := max(o.Clients, 1)
		key := UserChannel{User: o.User, Channel: name}
		if n > snap.UserChannels[key] {
			snap.UserChannels[key] = n
		}
	}
	return snap, unresolved
}

// mergeMax folds src into dst keeping the larger value per key.
func mergeMax(dst, src map[UserChannel]int) {
	for k, n := range src {
		if n > dst[k] {
			dst[k] = n
		}
	}
}
