package workflow

import "fmt"

// NotFoundError reports that no proxy host matched an identifier.
type NotFoundError struct {
	Identifier string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("proxy host not found for %q", e.Identifier)
}

// AmbiguityError reports that a domain matched more than one proxy host.
// The caller must disambiguate with a numeric id.
type AmbiguityError struct {
	Identifier string
	HostIDs    []int
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("multiple proxy hosts found for %q: ids %v", e.Identifier, e.HostIDs)
}

// OrphanCertificateError reports that a certificate was issued but the
// step that would have used it failed. The certificate still exists on
// the NPM instance and must be cleaned up manually.
type OrphanCertificateError struct {
	CertificateID int
	Err           error
}

func (e *OrphanCertificateError) Error() string {
	return fmt.Sprintf("certificate %d was created but left unattached: %v", e.CertificateID, e.Err)
}

func (e *OrphanCertificateError) Unwrap() error { return e.Err }
