package domain

// Repository identifies a hosted git repository that jobs may refer to implicitly.
type Repository struct {
	Owner     string
	Name      string
	RemoteURL string
}

// Path returns "owner/name", or an empty string for the zero Repository.
func (r Repository) Path() string {
	if r.Owner == "" && r.Name == "" {
		return ""
	}
	return r.Owner + "/" + r.Name
}
