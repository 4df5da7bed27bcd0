package train

import (
	"math/rand"
	"slices"

	"github.com/cyclopcam/windet/pkg/svm"
)

// NegativeStore holds the negative training examples, up to a fixed capacity.
// When the store overflows, it keeps the examples that the current classifier
// scores highest, which are the ones it is least confident about.
type NegativeStore struct {
	capacity int // Zero means unbounded
	examples [][]float64
}

func NewNegativeStore(capacity int) *NegativeStore {
	return &NegativeStore{capacity: max(capacity, 0)}
}

// Add stores new negatives, and then evicts down to capacity.
// If cls is nil, the examples to evict are chosen uniformly at random.
// Returns the number of examples that were evicted.
func (s *NegativeStore) Add(examples [][]float64, cls *svm.Classifier, rng *rand.Rand) int {
	s.examples = append(s.examples, examples...)
	if s.capacity == 0 || len(s.examples) <= s.capacity {
		return 0
	}
	evicted := len(s.examples) - s.capacity
	if cls == nil {
		rng.Shuffle(len(s.examples), func(i, j int) { s.examples[i], s.examples[j] = s.examples[j], s.examples[i] })
	} else {
		type scored struct {
			x     []float64
			score float64
		}
		all := make([]scored, len(s.examples))
		for i, x := range s.examples {
			all[i] = scored{x, cls.Score(x)}
		}
		slices.SortStableFunc(all, func(a, b scored) int {
			if a.score > b.score {
				return -1
			} else if a.score < b.score {
				return 1
			}
			return 0
		})
		for i := range all {
			s.examples[i] = all[i].x
		}
	}
	clear(s.examples[s.capacity:])
	s.examples = s.examples[:s.capacity]
	return evicted
}

func (s *NegativeStore) Examples() [][]float64 {
	return s.examples
}

func (s *NegativeStore) Len() int {
	return len(s.examples)
}

func (s *NegativeStore) Capacity() int {
	return s.capacity
}
