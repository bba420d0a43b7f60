package stream

// Fragments yields a text in fixed-size pieces, split on rune boundaries.
// It is consumed once; there is no way to rewind it.
type Fragments struct {
	runes []rune
	size  int
	pos   int
}

// NewFragments splits text into pieces of at most size runes.
func NewFragments(text string, size int) *Fragments {
	if size <= 0 {
		size = 1
	}
	return &Fragments{runes: []rune(text), size: size}
}

// Next returns the next fragment, or false once the text is exhausted.
func (f *Fragments) Next() (string, bool) {
	if f.pos >= len(f.runes) {
		return "", false
	}
	end := f.pos + f.size
	if end > len(f.runes) {
		end = len(f.runes)
	}
	piece := string(f.runes[f.pos:end])
	f.pos = end
	return piece, true
}

// Remaining reports how many fragments are left.
func (f *Fragments) Remaining() int {
	left := len(f.runes) - f.pos
	return (left + f.size - 1) / f.size
}
