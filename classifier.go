package imagedup

import (
	"fmt"
	"sync"
)

// acceptedEntry is one member of the accepted set: a fingerprint and the
// identifier of the image it represents.
type acceptedEntry struct {
	fp Fingerprint
	id string
}

// Classifier decides, for a stream of fingerprints, which are new and which
// are near-duplicates of something already seen. It owns the accepted set:
// an insertion-ordered sequence that grows monotonically during a run and is
// discarded with the Classifier. Safe for concurrent use, though callers that
// care about representative selection must serialize calls in encounter order
// themselves — classification is order-dependent.
type Classifier struct {
	mu        sync.Mutex
	threshold int
	accepted  []acceptedEntry
}

// NewClassifier returns a Classifier with an empty accepted set.
func NewClassifier(threshold int) *Classifier {
	return &Classifier{threshold: threshold}
}

// Classify scans the accepted set in insertion order and returns a duplicate
// verdict for the first member within the threshold. The scan does not look
// for the globally nearest match; the first accepted representative under the
// threshold wins, so the chosen representative for a cluster depends entirely
// on encounter order. If no member matches, (fp, id) is appended to the
// accepted set and the verdict is unique.
//
// A length mismatch between fp and an accepted fingerprint means mixed grid
// sizes within one run; it is returned as an error wrapping ErrLengthMismatch
// and the accepted set is left unchanged.
func (c *Classifier) Classify(fp Fingerprint, id string) (Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.accepted {
		d, err := fp.Distance(e.fp)
		if err != nil {
			return Verdict{}, fmt.Errorf("comparing %s against %s: %w", id, e.id, err)
		}
		if d <= c.threshold {
			return Verdict{ID: id, Kind: VerdictDuplicate, Representative: e.id}, nil
		}
	}

	c.accepted = append(c.accepted, acceptedEntry{fp: fp, id: id})
	return Verdict{ID: id, Kind: VerdictUnique}, nil
}

// Size returns the current number of accepted representatives.
func (c *Classifier) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.accepted)
}

// Representatives returns the accepted identifiers in insertion order.
func (c *Classifier) Representatives() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, len(c.accepted))
	for i, e := range c.accepted {
		ids[i] = e.id
	}
	return ids
}
