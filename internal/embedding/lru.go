package embedding

import (
	"time"

	"github.com/hrygo/divinesense/internal/cachekit"
)

// slidingWindowSize is the fixed LRU capacity for recent-embedding
// duplicate detection, per spec.md §4.4 ("A small LRU (10 entries) holds
// recent embeddings for sliding-window duplicate detection").
const slidingWindowSize = 10

// slidingWindowTTL is generous on purpose: the window is bounded by
// capacity, not time, so TTL only guards against a pathologically slow
// request stream holding a stale entry forever.
const slidingWindowTTL = 10 * time.Minute

// DuplicateWindow holds the most recently embedded texts and their
// vectors, so a generation worker can detect the model repeating itself
// across consecutive completions without re-embedding every comparison.
type DuplicateWindow struct {
	cache *cachekit.LRUCache[string, Vector]
}

// NewDuplicateWindow creates an empty sliding window.
func NewDuplicateWindow() *DuplicateWindow {
	return &DuplicateWindow{cache: cachekit.New[string, Vector](slidingWindowSize, slidingWindowTTL)}
}

// Record adds text's vector to the window, keyed by the raw text so
// recording a byte-identical text again refreshes its entry instead of
// taking a second slot. IsDuplicate compares vectors only.
func (d *DuplicateWindow) Record(text string, vec Vector) {
	d.cache.Set(text, vec, 0)
}

// IsDuplicate reports whether vec is cosine-similar to any vector
// currently in the window at or above threshold, and returns the highest
// such similarity found.
func (d *DuplicateWindow) IsDuplicate(vec Vector, threshold float64) (bool, float64) {
	best := 0.0
	for _, v := range d.cache.Values() {
		if sim := CosineSimilarity(vec, v); sim > best {
			best = sim
		}
	}
	return best >= threshold, best
}
