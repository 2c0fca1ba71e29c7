package anonymiser

// AnonymiseError is raised for fields with no safe replacement rule. The
// message names the offending field and the specific reason so operators can
// fix descriptor configuration rather than guessing.
type AnonymiseError struct {
	Field  string
	Reason string
}

func (e *AnonymiseError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return "cannot anonymise " + e.Field + " - " + e.Reason
}

func errPrimaryKey() error {
	return &AnonymiseError{Reason: "cannot anonymise primary key"}
}

func errUnknownKind() error {
	return &AnonymiseError{Reason: "unknown field type for anonymiser"}
}
