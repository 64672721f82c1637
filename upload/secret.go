package upload

// Secret holds a credential that must never show up in logs. Printing it with
// any fmt verb masks the value.
type Secret string

const maskedSecret = "*****"

// String implements fmt.Stringer. A non-empty Secret prints as asterisks.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return maskedSecret
}
