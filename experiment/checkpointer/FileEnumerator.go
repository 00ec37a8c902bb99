package checkpointer

import "fmt"

// pathEnumerator generates consecutive checkpoint paths
type pathEnumerator struct {
	next      int
	prefix    string
	extension string
}

// path returns the next enumerated checkpoint path
func (p *pathEnumerator) path() string {
	p.next++
	return fmt.Sprintf("%v%v%v", p.prefix, p.next, p.extension)
}

// FilenameEnumerator returns a function generating paths with an
// incrementing integer between prefix and extension. The first call
// returns the path numbered start + 1, and each later call increments
// the number, so successive checkpoints of a single object can be
// kept side by side. The prefix parameter is the full path up to the
// number; the extension may be empty, in which case the enumerated
// paths name directories rather than files.
func FilenameEnumerator(start int, prefix, extension string) func() string {
	enum := pathEnumerator{next: start, prefix: prefix, extension: extension}
	return enum.path
}
