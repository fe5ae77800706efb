package ident

// MaxLen bounds room and shape identifiers; they are embedded in Redis keys.
const MaxLen = 128

// Valid reports whether id is usable as a room or shape identifier:
// non-empty, at most MaxLen bytes, printable ASCII without spaces.
func Valid(id string) bool {
	if id == "" || len(id) > MaxLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c <= ' ' || c > '~' {
			return false
		}
	}
	return true
}
