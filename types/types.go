package types

// ImageID identifies one source image. The index never interprets it beyond
// equality and ordering; in practice it is the path the image was read from.
type ImageID string

// MatchResult holds one ranked answer of a similarity query
type MatchResult struct {
	Distance int     `json:"distance"`
	ID       ImageID `json:"id"`
}

// Less orders matches by distance, then by identifier
func (m MatchResult) Less(other MatchResult) bool {
	if m.Distance != other.Distance {
		return m.Distance < other.Distance
	}
	return m.ID < other.ID
}
