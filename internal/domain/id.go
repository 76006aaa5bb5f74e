package domain

// JobIDLength is the length of every generated job id.
const JobIDLength = 27

// ValidJobID reports whether id has the shape of a generated job id:
// JobIDLength ASCII letters and digits.
func ValidJobID(id string) bool {
	if len(id) != JobIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
