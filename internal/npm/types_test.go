package npm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCertificateIDMarshal(t *testing.T) {
	cases := []struct {
		name string
		id   CertificateID
		want string
	}{
		{"absent", CertificateID{}, "null"},
		{"existing", ExistingCertificate(42), "42"},
		{"new", ProvisionNewCertificate(), `"new"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.id)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(data))
		})
	}
}

func TestCertificateIDUnmarshal(t *testing.T) {
	var id CertificateID

	require.NoError(t, json.Unmarshal([]byte("null"), &id))
	assert.True(t, id.IsZero())

	// NPM sends 0 for hosts that never had a certificate
	require.NoError(t, json.Unmarshal([]byte("0"), &id))
	assert.True(t, id.IsZero())

	require.NoError(t, json.Unmarshal([]byte("42"), &id))
	got, ok := id.ID()
	require.True(t, ok)
	assert.Equal(t, 42, got)

	require.NoError(t, json.Unmarshal([]byte(`"new"`), &id))
	assert.True(t, id.IsNew())

	assert.Error(t, json.Unmarshal([]byte(`"later"`), &id))
	assert.Error(t, json.Unmarshal([]byte(`1.5`), &id))

	// Direct callers may hand over an empty token; json.Unmarshal never does.
	assert.Error(t, id.UnmarshalJSON(nil))
}

func TestCertificateIDOmittedWhenAbsent(t *testing.T) {
	data, err := json.Marshal(ProxyHostCreate{
		DomainNames:   []string{"a.example.com"},
		ForwardScheme: "http",
		ForwardHost:   "10.0.0.5",
		ForwardPort:   80,
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	_, present := raw["certificate_id"]
	assert.False(t, present)
}

func TestWritableNormalizesNilLocations(t *testing.T) {
	host := ProxyHost{ProxyHostCreate: ProxyHostCreate{
		DomainNames: []string{"a.example.com"},
	}}

	w := host.Writable()
	require.NotNil(t, w.Locations)
	assert.Empty(t, w.Locations)
	// the host itself is untouched
	assert.Nil(t, host.Locations)
}

func TestApplyOverlaysOnlySetFields(t *testing.T) {
	base := ProxyHostCreate{
		DomainNames:   []string{"a.example.com"},
		ForwardScheme: "http",
		ForwardHost:   "10.0.0.5",
		ForwardPort:   8080,
		SSLForced:     true,
		Enabled:       true,
	}

	port := 9090
	forced := false
	out := ProxyHostUpdate{ForwardPort: &port, SSLForced: &forced}.Apply(base)

	assert.Equal(t, 9090, out.ForwardPort)
	assert.False(t, out.SSLForced)

	assert.Equal(t, []string{"a.example.com"}, out.DomainNames)
	assert.Equal(t, "10.0.0.5", out.ForwardHost)
	assert.True(t, out.Enabled)

	// Apply is pure
	assert.Equal(t, 8080, base.ForwardPort)
	assert.True(t, base.SSLForced)
}

func TestApplyCanClearCertificate(t *testing.T) {
	base := ProxyHostCreate{CertificateID: ExistingCertificate(42)}

	cleared := CertificateID{}
	out := ProxyHostUpdate{CertificateID: &cleared}.Apply(base)
	assert.True(t, out.CertificateID.IsZero())
}

func TestHasDomain(t *testing.T) {
	host := ProxyHost{ProxyHostCreate: ProxyHostCreate{
		DomainNames: []string{"a.example.com", "b.example.com"},
	}}

	assert.True(t, host.HasDomain("b.example.com"))
	assert.False(t, host.HasDomain("c.example.com"))
	assert.False(t, host.HasDomain("example.com"))
}

func TestCertificateIDString(t *testing.T) {
	assert.Equal(t, "-", CertificateID{}.String())
	assert.Equal(t, "42", ExistingCertificate(42).String())
	assert.Equal(t, "new", ProvisionNewCertificate().String())
}
