package tracker

import "image"

// Point is a sub-pixel image coordinate.
type Point struct {
	X, Y float64
}

// Status reports whether a feature was found in the target frame.
type Status uint8

const (
	Lost Status = iota
	Tracked
)

func (s Status) String() string {
	if s == Tracked {
		return "tracked"
	}
	return "lost"
}

// Track is the outcome of following one feature into the target frame.
type Track struct {
	From   Point
	To     Point
	Status Status
	Error  float64 // mean absolute intensity residual over the search window
}

// Correspondences holds matched feature locations. Prev[i] and Next[i] always
// describe the same feature, so both slices have the same length.
type Correspondences struct {
	Prev []Point
	Next []Point
}

func (c Correspondences) Len() int {
	return len(c.Prev)
}

// Keep builds the correspondence set from the tracked features, dropping lost ones
// from both sides.
func Keep(tracks []Track) Correspondences {
	c := Correspondences{
		Prev: make([]Point, 0, len(tracks)),
		Next: make([]Point, 0, len(tracks)),
	}
	for _, t := range tracks {
		if t.Status != Tracked {
			continue
		}
		c.Prev = append(c.Prev, t.From)
		c.Next = append(c.Next, t.To)
	}
	return c
}

// Tracker finds point correspondences between two grayscale frames. prev is
// always the chronologically earlier frame.
type Tracker interface {
	Track(prev, next *image.Gray) (Correspondences, error)
}
