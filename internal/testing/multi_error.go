package testing

import "strings"

// MultiError aggregates multiple errors into one.
type MultiError []error

func (m MultiError) Error() string {
	var b strings.Builder
	for i, err := range m {
		if err == nil {
			continue
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// AppendErr appends err to MultiError if err is not nil.
func AppendErr(m *MultiError, err error) {
	if err == nil {
		return
	}
	*m = append(*m, err)
}
