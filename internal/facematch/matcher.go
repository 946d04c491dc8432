package facematch

import "math"

const (
	// Unknown is the identity surfaced for any detection that could not
	// be confidently matched to a registered person.
	Unknown = "Unknown"

	// DefaultThreshold is the maximum Euclidean distance at which a
	// detection may be assigned to a person. Smaller values mean
	// stricter matching.
	DefaultThreshold = 0.5

	// DefaultMinScore is the confidence floor below which an assigned
	// identity reverts to Unknown while the computed distance and score
	// remain visible.
	DefaultMinScore = 0.2
)

// Reference is one known person's representative vector, already
// normalized to unit length.
type Reference struct {
	PersonID string
	Name     string
	Vector   []float32
}

// Assignment is the matching verdict for a single detection.
type Assignment struct {
	PersonID   string   `json:"person_id,omitempty"`
	PersonName string   `json:"person_name"`
	Distance   *float64 `json:"distance"`
	MatchScore float64  `json:"match_score"`
}

// Matcher assigns per-frame detections to known identities. It is a
// pure value: Match has no side effects and is deterministic for a
// given input.
type Matcher struct {
	threshold float64
	minScore  float64
}

func New(threshold, minScore float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	return &Matcher{threshold: threshold, minScore: minScore}
}

func (m *Matcher) Threshold() float64 { return m.threshold }

// Match resolves each query embedding to a person or Unknown.
//
// queries are aligned with the detections of a single frame; a nil,
// empty, or otherwise malformed entry means the detector could not
// produce a usable crop and the detection stays Unknown with a null
// distance. Assignment is greedy one-to-one: the globally smallest
// remaining (detection, person) distance wins each round until the best
// remaining pair exceeds the threshold. Ties break to the lowest
// detection index, then the lowest person index. This is a cheap
// approximation, not min-cost bipartite matching.
func (m *Matcher) Match(queries [][]float32, refs []Reference) []Assignment {
	out := make([]Assignment, len(queries))
	for i := range out {
		out[i] = Assignment{PersonName: Unknown}
	}
	if len(queries) == 0 {
		return out
	}

	normalized := make([][]float32, len(queries))
	for i, q := range queries {
		if Valid(q) {
			normalized[i] = Normalize(q)
		}
	}

	usable := make([]Reference, 0, len(refs))
	for _, r := range refs {
		if Valid(r.Vector) {
			usable = append(usable, r)
		}
	}
	if len(usable) == 0 {
		return out
	}

	dist := make([][]float64, len(queries))
	for i := range dist {
		dist[i] = make([]float64, len(usable))
		for j := range usable {
			if normalized[i] == nil {
				dist[i][j] = math.Inf(1)
				continue
			}
			dist[i][j] = Distance(normalized[i], usable[j].Vector)
		}
	}

	assignedDet := make([]bool, len(queries))
	assignedRef := make([]bool, len(usable))

	for {
		bestI, bestJ := -1, -1
		bestDist := math.Inf(1)
		for i := range queries {
			if assignedDet[i] || normalized[i] == nil {
				continue
			}
			for j := range usable {
				if assignedRef[j] {
					continue
				}
				if d := dist[i][j]; d < bestDist {
					bestDist = d
					bestI = i
					bestJ = j
				}
			}
		}

		if bestI < 0 || bestJ < 0 {
			break
		}
		// Everything still unassigned is at least this far away.
		if bestDist > m.threshold {
			break
		}

		score := m.Score(bestDist)
		a := Assignment{
			PersonID:   usable[bestJ].PersonID,
			PersonName: usable[bestJ].Name,
			Distance:   &bestDist,
			MatchScore: score,
		}
		// Near-threshold matches stay visible as a percentage but are
		// not surfaced as an identity.
		if score < m.minScore {
			a.PersonID = ""
			a.PersonName = Unknown
		}
		out[bestI] = a

		assignedDet[bestI] = true
		assignedRef[bestJ] = true
	}

	return out
}

// Score maps a distance to a confidence in [0,1]: 1 at distance zero,
// 0 at the threshold and beyond.
func (m *Matcher) Score(distance float64) float64 {
	return math.Max(0, 1-distance/m.threshold)
}
