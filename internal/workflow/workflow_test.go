package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/npmctl/internal/npm"
)

type fakeAPI struct {
	hosts []npm.ProxyHost

	listErr       error
	getErr        error
	createHostErr error
	updateErr     error
	createCertErr error

	nextCertID int
	nextHostID int

	createdHosts []npm.ProxyHostCreate
	createdCerts []npm.CertificateCreate
	updates      []recordedUpdate
}

type recordedUpdate struct {
	id      int
	changes npm.ProxyHostUpdate
}

func (f *fakeAPI) ListProxyHosts(ctx context.Context) ([]npm.ProxyHost, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.hosts, nil
}

func (f *fakeAPI) GetProxyHost(ctx context.Context, id int) (*npm.ProxyHost, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for i := range f.hosts {
		if f.hosts[i].ID == id {
			return &f.hosts[i], nil
		}
	}
	return nil, &npm.APIError{Message: "proxy host not found", StatusCode: 404}
}

func (f *fakeAPI) CreateProxyHost(ctx context.Context, spec npm.ProxyHostCreate) (*npm.ProxyHost, error) {
	f.createdHosts = append(f.createdHosts, spec)
	if f.createHostErr != nil {
		return nil, f.createHostErr
	}
	f.nextHostID++
	return &npm.ProxyHost{ProxyHostCreate: spec, ID: f.nextHostID + 100, OwnerUserID: 1}, nil
}

func (f *fakeAPI) UpdateProxyHost(ctx context.Context, id int, changes npm.ProxyHostUpdate) (*npm.ProxyHost, error) {
	f.updates = append(f.updates, recordedUpdate{id: id, changes: changes})
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	for i := range f.hosts {
		if f.hosts[i].ID == id {
			h := f.hosts[i]
			h.ProxyHostCreate = changes.Apply(h.Writable())
			return &h, nil
		}
	}
	return nil, &npm.APIError{Message: "not found", StatusCode: 404}
}

func (f *fakeAPI) CreateCertificate(ctx context.Context, spec npm.CertificateCreate) (*npm.Certificate, error) {
	f.createdCerts = append(f.createdCerts, spec)
	if f.createCertErr != nil {
		return nil, f.createCertErr
	}
	f.nextCertID++
	return &npm.Certificate{ID: f.nextCertID + 500, Provider: spec.Provider, DomainNames: spec.DomainNames}, nil
}

func sourceHost(id int, domains []string, certID npm.CertificateID) npm.ProxyHost {
	return npm.ProxyHost{
		ProxyHostCreate: npm.ProxyHostCreate{
			DomainNames:    domains,
			ForwardScheme:  "http",
			ForwardHost:    "10.0.0.5",
			ForwardPort:    8080,
			CachingEnabled: true,
			CertificateID:  certID,
		},
		ID:          id,
		OwnerUserID: 1,
	}
}

func newWorkflows(api API) *Workflows {
	return New(api, zerolog.Nop())
}

func TestCloneProxyHostByID(t *testing.T) {
	api := &fakeAPI{hosts: []npm.ProxyHost{sourceHost(7, []string{"app.example.com"}, npm.CertificateID{})}}
	w := newWorkflows(api)

	clone, err := w.CloneProxyHost(context.Background(), "7", []string{"app2.example.com"}, false)
	require.NoError(t, err)

	require.Len(t, api.createdHosts, 1)
	spec := api.createdHosts[0]
	assert.Equal(t, []string{"app2.example.com"}, spec.DomainNames)
	assert.Equal(t, "10.0.0.5", spec.ForwardHost)
	assert.Equal(t, 8080, spec.ForwardPort)
	assert.True(t, spec.CachingEnabled)
	assert.Equal(t, []string{"app2.example.com"}, clone.DomainNames)
	assert.Empty(t, api.createdCerts)
}

func TestCloneProxyHostByDomain(t *testing.T) {
	api := &fakeAPI{hosts: []npm.ProxyHost{
		sourceHost(1, []string{"other.example.com"}, npm.CertificateID{}),
		sourceHost(2, []string{"app.example.com", "www.app.example.com"}, npm.CertificateID{}),
	}}
	w := newWorkflows(api)

	_, err := w.CloneProxyHost(context.Background(), "www.app.example.com", []string{"new.example.com"}, false)
	require.NoError(t, err)
	require.Len(t, api.createdHosts, 1)
	assert.Equal(t, []string{"new.example.com"}, api.createdHosts[0].DomainNames)
}

func TestCloneProxyHostDomainNotFound(t *testing.T) {
	api := &fakeAPI{hosts: []npm.ProxyHost{sourceHost(1, []string{"other.example.com"}, npm.CertificateID{})}}
	w := newWorkflows(api)

	_, err := w.CloneProxyHost(context.Background(), "missing.example.com", []string{"new.example.com"}, false)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing.example.com", notFound.Identifier)
	assert.Empty(t, api.createdHosts)
	assert.Empty(t, api.createdCerts)
}

func TestCloneProxyHostDomainAmbiguous(t *testing.T) {
	api := &fakeAPI{hosts: []npm.ProxyHost{
		sourceHost(1, []string{"app.example.com"}, npm.CertificateID{}),
		sourceHost(2, []string{"app.example.com"}, npm.CertificateID{}),
	}}
	w := newWorkflows(api)

	_, err := w.CloneProxyHost(context.Background(), "app.example.com", []string{"new.example.com"}, false)

	var ambiguous *AmbiguityError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, []int{1, 2}, ambiguous.HostIDs)
	assert.Empty(t, api.createdHosts)
}

func TestCloneProxyHostClearsCertificateWithoutSSL(t *testing.T) {
	api := &fakeAPI{hosts: []npm.ProxyHost{sourceHost(7, []string{"app.example.com"}, npm.ExistingCertificate(42))}}
	w := newWorkflows(api)

	_, err := w.CloneProxyHost(context.Background(), "7", []string{"new.example.com"}, false)
	require.NoError(t, err)

	require.Len(t, api.createdHosts, 1)
	assert.True(t, api.createdHosts[0].CertificateID.IsZero())
	assert.Empty(t, api.createdCerts)
}

func TestCloneProxyHostProvisionsCertificate(t *testing.T) {
	api := &fakeAPI{hosts: []npm.ProxyHost{sourceHost(7, []string{"app.example.com"}, npm.ExistingCertificate(42))}}
	w := newWorkflows(api)

	clone, err := w.CloneProxyHost(context.Background(), "7", []string{"new.example.com"}, true)
	require.NoError(t, err)

	require.Len(t, api.createdCerts, 1)
	cert := api.createdCerts[0]
	assert.Equal(t, []string{"new.example.com"}, cert.DomainNames)
	assert.Equal(t, "letsencrypt", cert.Provider)
	assert.NotNil(t, cert.Meta)

	require.Len(t, api.createdHosts, 1)
	id, ok := api.createdHosts[0].CertificateID.ID()
	require.True(t, ok)
	assert.Equal(t, 501, id)
	assert.Equal(t, []string{"new.example.com"}, clone.DomainNames)
}

func TestCloneProxyHostSSLSkippedWhenSourceHasNoCert(t *testing.T) {
	api := &fakeAPI{hosts: []npm.ProxyHost{sourceHost(7, []string{"app.example.com"}, npm.CertificateID{})}}
	w := newWorkflows(api)

	_, err := w.CloneProxyHost(context.Background(), "7", []string{"new.example.com"}, true)
	require.NoError(t, err)

	assert.Empty(t, api.createdCerts)
	require.Len(t, api.createdHosts, 1)
	assert.True(t, api.createdHosts[0].CertificateID.IsZero())
}

func TestCloneProxyHostCertFailureAbortsBeforeHostCreate(t *testing.T) {
	api := &fakeAPI{
		hosts:         []npm.ProxyHost{sourceHost(7, []string{"app.example.com"}, npm.ExistingCertificate(42))},
		createCertErr: errors.New("rate limited"),
	}
	w := newWorkflows(api)

	_, err := w.CloneProxyHost(context.Background(), "7", []string{"new.example.com"}, true)
	require.Error(t, err)
	assert.ErrorContains(t, err, "provision certificate")
	assert.Empty(t, api.createdHosts)
}

func TestCloneProxyHostOrphanCertificateOnHostFailure(t *testing.T) {
	api := &fakeAPI{
		hosts:         []npm.ProxyHost{sourceHost(7, []string{"app.example.com"}, npm.ExistingCertificate(42))},
		createHostErr: errors.New("boom"),
	}
	w := newWorkflows(api)

	_, err := w.CloneProxyHost(context.Background(), "7", []string{"new.example.com"}, true)

	var orphan *OrphanCertificateError
	require.ErrorAs(t, err, &orphan)
	assert.Equal(t, 501, orphan.CertificateID)
	require.Len(t, api.createdCerts, 1)
}

func TestAttachCertificate(t *testing.T) {
	api := &fakeAPI{hosts: []npm.ProxyHost{sourceHost(3, []string{"app.example.com"}, npm.CertificateID{})}}
	w := newWorkflows(api)

	cert, host, err := w.AttachCertificate(context.Background(), "app.example.com", npm.CertificateCreate{
		DomainNames: []string{"app.example.com"},
		Provider:    "letsencrypt",
		Meta:        map[string]any{},
	}, AttachOptions{SSLForced: true, HTTP2Support: true})
	require.NoError(t, err)

	require.Len(t, api.updates, 1)
	upd := api.updates[0]
	assert.Equal(t, 3, upd.id)
	require.NotNil(t, upd.changes.CertificateID)
	id, ok := upd.changes.CertificateID.ID()
	require.True(t, ok)
	assert.Equal(t, cert.ID, id)
	require.NotNil(t, upd.changes.SSLForced)
	assert.True(t, *upd.changes.SSLForced)
	require.NotNil(t, upd.changes.HTTP2Support)
	assert.True(t, *upd.changes.HTTP2Support)
	assert.Nil(t, upd.changes.HSTSEnabled)

	gotID, ok := host.CertificateID.ID()
	require.True(t, ok)
	assert.Equal(t, cert.ID, gotID)
}

func TestAttachCertificateNoMatchingHostLeavesOrphan(t *testing.T) {
	api := &fakeAPI{hosts: []npm.ProxyHost{sourceHost(3, []string{"other.example.com"}, npm.CertificateID{})}}
	w := newWorkflows(api)

	cert, _, err := w.AttachCertificate(context.Background(), "app.example.com", npm.CertificateCreate{
		DomainNames: []string{"app.example.com"},
		Provider:    "letsencrypt",
	}, AttachOptions{})

	var orphan *OrphanCertificateError
	require.ErrorAs(t, err, &orphan)
	assert.Equal(t, cert.ID, orphan.CertificateID)

	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.Empty(t, api.updates)
}

func TestAttachCertificateCreateFailureMakesNoUpdates(t *testing.T) {
	api := &fakeAPI{
		hosts:         []npm.ProxyHost{sourceHost(3, []string{"app.example.com"}, npm.CertificateID{})},
		createCertErr: errors.New("dns validation failed"),
	}
	w := newWorkflows(api)

	_, _, err := w.AttachCertificate(context.Background(), "app.example.com", npm.CertificateCreate{
		DomainNames: []string{"app.example.com"},
		Provider:    "letsencrypt",
	}, AttachOptions{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "create certificate")
	assert.Empty(t, api.updates)
}

func TestAttachCertificateUpdateFailureReportsOrphan(t *testing.T) {
	api := &fakeAPI{
		hosts:     []npm.ProxyHost{sourceHost(3, []string{"app.example.com"}, npm.CertificateID{})},
		updateErr: errors.New("server error"),
	}
	w := newWorkflows(api)

	cert, _, err := w.AttachCertificate(context.Background(), "app.example.com", npm.CertificateCreate{
		DomainNames: []string{"app.example.com"},
		Provider:    "letsencrypt",
	}, AttachOptions{})

	var orphan *OrphanCertificateError
	require.ErrorAs(t, err, &orphan)
	assert.Equal(t, cert.ID, orphan.CertificateID)
}
