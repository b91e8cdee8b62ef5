// Package workflow composes multiple NPM API calls into single
// operations. There is no transaction underneath: each workflow documents
// which partial states it can leave behind when a later step fails.
package workflow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/edvin/npmctl/internal/npm"
)

// API is the subset of the NPM client the workflows use. Injected so
// tests can substitute a recording fake.
type API interface {
	ListProxyHosts(ctx context.Context) ([]npm.ProxyHost, error)
	GetProxyHost(ctx context.Context, id int) (*npm.ProxyHost, error)
	CreateProxyHost(ctx context.Context, spec npm.ProxyHostCreate) (*npm.ProxyHost, error)
	UpdateProxyHost(ctx context.Context, id int, changes npm.ProxyHostUpdate) (*npm.ProxyHost, error)
	CreateCertificate(ctx context.Context, spec npm.CertificateCreate) (*npm.Certificate, error)
}

type Workflows struct {
	api    API
	logger zerolog.Logger
}

func New(api API, logger zerolog.Logger) *Workflows {
	return &Workflows{api: api, logger: logger}
}

// CloneProxyHost copies an existing proxy host to new domain names. The
// source is either a numeric id or a domain name served by exactly one
// host. Every writable field except the domains is copied verbatim; the
// clone never inherits the source's certificate reference.
//
// When provisionSSL is true and the source carries a certificate, a fresh
// letsencrypt certificate is requested for the new domains first and
// attached to the clone. A source without a certificate never gets one,
// regardless of the flag.
//
// Failure behavior: resolution failures happen before any write. A
// certificate-creation failure aborts before the proxy host is created.
// If the proxy host creation fails after a certificate was issued, the
// certificate is left behind; the returned OrphanCertificateError names
// it for operator cleanup.
func (w *Workflows) CloneProxyHost(ctx context.Context, sourceIdentifier string, newDomains []string, provisionSSL bool) (*npm.ProxyHost, error) {
	source, err := w.resolveProxyHost(ctx, sourceIdentifier)
	if err != nil {
		return nil, err
	}

	spec := source.Writable()
	spec.DomainNames = newDomains
	spec.CertificateID = npm.CertificateID{}

	_, sourceHasCert := source.CertificateID.ID()
	if provisionSSL && sourceHasCert {
		cert, err := w.api.CreateCertificate(ctx, npm.CertificateCreate{
			DomainNames: newDomains,
			Provider:    "letsencrypt",
			Meta:        map[string]any{},
		})
		if err != nil {
			return nil, fmt.Errorf("provision certificate for clone: %w", err)
		}
		w.logger.Info().Int("certificate_id", cert.ID).Strs("domains", newDomains).Msg("certificate requested for clone")
		spec.CertificateID = npm.ExistingCertificate(cert.ID)

		created, err := w.api.CreateProxyHost(ctx, spec)
		if err != nil {
			return nil, &OrphanCertificateError{CertificateID: cert.ID, Err: err}
		}
		return created, nil
	}

	return w.api.CreateProxyHost(ctx, spec)
}

// AttachOptions are the SSL toggles AttachCertificate can force on while
// it attaches the certificate. Unset toggles keep the host's current
// values.
type AttachOptions struct {
	SSLForced    bool
	HSTSEnabled  bool
	HTTP2Support bool
}

// AttachCertificate requests a certificate and attaches it to the proxy
// host serving the given domain.
//
// The certificate is created first. If no proxy host serves the domain,
// the certificate is NOT rolled back; the returned OrphanCertificateError
// carries its id. The attachment itself is a full read-merge-write update
// of the host.
func (w *Workflows) AttachCertificate(ctx context.Context, domain string, spec npm.CertificateCreate, opts AttachOptions) (*npm.Certificate, *npm.ProxyHost, error) {
	cert, err := w.api.CreateCertificate(ctx, spec)
	if err != nil {
		return nil, nil, fmt.Errorf("create certificate: %w", err)
	}
	w.logger.Info().Int("certificate_id", cert.ID).Str("domain", domain).Msg("certificate requested")

	host, err := w.findByDomain(ctx, domain)
	if err != nil {
		return cert, nil, &OrphanCertificateError{CertificateID: cert.ID, Err: err}
	}

	certID := npm.ExistingCertificate(cert.ID)
	changes := npm.ProxyHostUpdate{CertificateID: &certID}
	forced := true
	if opts.SSLForced {
		changes.SSLForced = &forced
	}
	if opts.HSTSEnabled {
		changes.HSTSEnabled = &forced
	}
	if opts.HTTP2Support {
		changes.HTTP2Support = &forced
	}

	updated, err := w.api.UpdateProxyHost(ctx, host.ID, changes)
	if err != nil {
		return cert, nil, &OrphanCertificateError{CertificateID: cert.ID, Err: fmt.Errorf("attach certificate to proxy host %d: %w", host.ID, err)}
	}

	return cert, updated, nil
}

// resolveProxyHost fetches a host by numeric id, or scans all hosts for a
// unique domain match. Ambiguity is a hard error; a host is never picked
// silently.
func (w *Workflows) resolveProxyHost(ctx context.Context, identifier string) (*npm.ProxyHost, error) {
	if id, err := strconv.Atoi(identifier); err == nil {
		return w.api.GetProxyHost(ctx, id)
	}
	return w.findByDomain(ctx, identifier)
}

func (w *Workflows) findByDomain(ctx context.Context, domain string) (*npm.ProxyHost, error) {
	hosts, err := w.api.ListProxyHosts(ctx)
	if err != nil {
		return nil, err
	}

	var matches []npm.ProxyHost
	for _, h := range hosts {
		if h.HasDomain(domain) {
			matches = append(matches, h)
		}
	}

	switch len(matches) {
	case 0:
		return nil, &NotFoundError{Identifier: domain}
	case 1:
		return &matches[0], nil
	default:
		ids := make([]int, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return nil, &AmbiguityError{Identifier: domain, HostIDs: ids}
	}
}
