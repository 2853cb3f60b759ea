package match

import (
	"fmt"
	"sync"

	"partcount/internal/pattern"

	"gocv.io/x/gocv"
)

// score is the correlation result of one orientation.
type score struct {
	field gocv.Mat
	hits  int
	err   error
}

func (s *score) close() {
	if s.err == nil {
		s.field.Close()
	}
}

// scoreAll correlates the frame with every orientation in parallel, one
// goroutine per orientation.
func (m *Matcher) scoreAll(gray gocv.Mat, set *pattern.Set) [pattern.Count]score {
	var scores [pattern.Count]score

	var wg sync.WaitGroup
	for i := 0; i < pattern.Count; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			scores[i] = m.score(gray, set.Patterns[i])
		}(i)
	}
	wg.Wait()

	return scores
}

// score runs TM_CCOEFF_NORMED of one pattern over the grayscale frame and
// counts the positions at or above the threshold. A pattern larger than the
// frame scores zero hits.
func (m *Matcher) score(gray gocv.Mat, pat gocv.Mat) score {
	if pat.Cols() > gray.Cols() || pat.Rows() > gray.Rows() {
		field := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 1, 1, gocv.MatTypeCV32F)
		return score{field: field}
	}

	patGray := gocv.NewMat()
	defer patGray.Close()
	if pat.Channels() == 1 {
		pat.CopyTo(&patGray)
	} else {
		gocv.CvtColor(pat, &patGray, gocv.ColorBGRToGray)
	}

	field := gocv.NewMat()
	noMask := gocv.NewMat()
	defer noMask.Close()
	gocv.MatchTemplate(gray, patGray, &field, gocv.TmCcoeffNormed, noMask)

	data, err := field.DataPtrFloat32()
	if err != nil {
		field.Close()
		return score{err: fmt.Errorf("read similarity field: %w", err)}
	}

	hits := 0
	for _, v := range data {
		if v >= m.Threshold {
			hits++
		}
	}
	return score{field: field, hits: hits}
}

// pickBest returns the index with the most hits; the first wins ties.
func pickBest(scores [pattern.Count]score) int {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i].err != nil {
			continue
		}
		if scores[best].err != nil || scores[i].hits > scores[best].hits {
			best = i
		}
	}
	return best
}
