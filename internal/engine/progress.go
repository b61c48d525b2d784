package engine

// Progress receives per-phase frame counts. Total is zero when the frame
// count is not known in advance. Add may be called from several goroutines.
type Progress interface {
	Start(phase string, total int)
	Add(n int)
	Finish()
}

type nopProgress struct{}

func (nopProgress) Start(string, int) {}
func (nopProgress) Add(int) {}
func (nopProgress) Finish() {}
