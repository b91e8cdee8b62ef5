package npm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// CertificateID is the value of a proxy host's certificate_id field. NPM
// overloads it: an integer references an issued certificate, the literal
// string "new" asks the server to provision one inline, and absence (or 0)
// means no certificate. The zero value is Absent.
type CertificateID struct {
	kind certIDKind
	id   int
}

type certIDKind int

const (
	certIDAbsent certIDKind = iota
	certIDExisting
	certIDNew
)

// ExistingCertificate references an already issued certificate.
func ExistingCertificate(id int) CertificateID {
	return CertificateID{kind: certIDExisting, id: id}
}

// ProvisionNewCertificate is the "new" sentinel: NPM issues a certificate
// as part of creating the proxy host.
func ProvisionNewCertificate() CertificateID {
	return CertificateID{kind: certIDNew}
}

// ID returns the referenced certificate id, if any.
func (c CertificateID) ID() (int, bool) {
	if c.kind != certIDExisting {
		return 0, false
	}
	return c.id, true
}

// IsNew reports whether this is the inline-provisioning sentinel.
func (c CertificateID) IsNew() bool { return c.kind == certIDNew }

// IsZero reports absence; it also lets encoding/json's omitzero drop the
// field from outgoing payloads.
func (c CertificateID) IsZero() bool { return c.kind == certIDAbsent }

func (c CertificateID) String() string {
	switch c.kind {
	case certIDExisting:
		return strconv.Itoa(c.id)
	case certIDNew:
		return "new"
	default:
		return "-"
	}
}

func (c CertificateID) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case certIDExisting:
		return json.Marshal(c.id)
	case certIDNew:
		return json.Marshal("new")
	default:
		return []byte("null"), nil
	}
}

func (c *CertificateID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("invalid certificate_id: empty input")
	}
	if bytes.Equal(data, []byte("null")) {
		*c = CertificateID{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != "new" {
			return fmt.Errorf("invalid certificate_id %q", s)
		}
		*c = ProvisionNewCertificate()
		return nil
	}
	var id int
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("invalid certificate_id: %w", err)
	}
	// NPM uses 0 interchangeably with null for "no certificate".
	if id == 0 {
		*c = CertificateID{}
		return nil
	}
	*c = ExistingCertificate(id)
	return nil
}

// Location is a per-path override inside a proxy host.
type Location struct {
	Path           string `json:"path" validate:"required"`
	ForwardScheme  string `json:"forward_scheme" validate:"required,oneof=http https"`
	ForwardHost    string `json:"forward_host" validate:"required"`
	ForwardPort    int    `json:"forward_port" validate:"required,gte=1,lte=65535"`
	AdvancedConfig string `json:"advanced_config,omitempty"`
}

// ProxyHostCreate holds every field NPM accepts on proxy host create and
// update. Server-assigned fields live on ProxyHost.
type ProxyHostCreate struct {
	DomainNames           []string       `json:"domain_names" validate:"required,min=1,max=15"`
	ForwardScheme         string         `json:"forward_scheme" validate:"required,oneof=http https"`
	ForwardHost           string         `json:"forward_host" validate:"required,min=1,max=255"`
	ForwardPort           int            `json:"forward_port" validate:"required,gte=1,lte=65535"`
	CertificateID         CertificateID  `json:"certificate_id,omitzero"`
	SSLForced             bool           `json:"ssl_forced"`
	HSTSEnabled           bool           `json:"hsts_enabled"`
	HSTSSubdomains        bool           `json:"hsts_subdomains"`
	HTTP2Support          bool           `json:"http2_support"`
	BlockExploits         bool           `json:"block_exploits"`
	CachingEnabled        bool           `json:"caching_enabled"`
	AllowWebsocketUpgrade bool           `json:"allow_websocket_upgrade"`
	AccessListID          int            `json:"access_list_id" validate:"gte=0"`
	AdvancedConfig        string         `json:"advanced_config"`
	Enabled               bool           `json:"enabled"`
	Meta                  map[string]any `json:"meta"`
	Locations             []Location     `json:"locations"`
}

// ProxyHost is a proxy host as returned by NPM.
type ProxyHost struct {
	ProxyHostCreate
	ID          int    `json:"id" validate:"required,gte=1"`
	CreatedOn   string `json:"created_on" validate:"required"`
	ModifiedOn  string `json:"modified_on" validate:"required"`
	OwnerUserID int    `json:"owner_user_id" validate:"required,gte=1"`
}

// Writable projects the host down to the fields NPM accepts on a PUT. The
// API rejects read-only fields and a null locations array, so a nil slice
// is replaced with an empty one.
func (h *ProxyHost) Writable() ProxyHostCreate {
	w := h.ProxyHostCreate
	if w.Locations == nil {
		w.Locations = []Location{}
	}
	return w
}

// HasDomain reports whether the host serves the given domain name.
func (h *ProxyHost) HasDomain(domain string) bool {
	for _, d := range h.DomainNames {
		if d == domain {
			return true
		}
	}
	return false
}

// ProxyHostUpdate is a partial change set; nil fields keep the current
// server-side value. See Apply.
type ProxyHostUpdate struct {
	DomainNames           *[]string `validate:"omitempty,min=1,max=15"`
	ForwardScheme         *string   `validate:"omitempty,oneof=http https"`
	ForwardHost           *string   `validate:"omitempty,min=1,max=255"`
	ForwardPort           *int      `validate:"omitempty,gte=1,lte=65535"`
	CertificateID         *CertificateID
	SSLForced             *bool
	HSTSEnabled           *bool
	HSTSSubdomains        *bool
	HTTP2Support          *bool
	BlockExploits         *bool
	CachingEnabled        *bool
	AllowWebsocketUpgrade *bool
	AccessListID          *int `validate:"omitempty,gte=0"`
	AdvancedConfig        *string
	Enabled               *bool
	Meta                  *map[string]any
	Locations             *[]Location
}

// Apply overlays the change set onto a full writable record, field by
// field; set fields win, unset fields keep the base value. Pure function,
// no I/O.
func (u ProxyHostUpdate) Apply(base ProxyHostCreate) ProxyHostCreate {
	out := base
	if u.DomainNames != nil {
		out.DomainNames = *u.DomainNames
	}
	if u.ForwardScheme != nil {
		out.ForwardScheme = *u.ForwardScheme
	}
	if u.ForwardHost != nil {
		out.ForwardHost = *u.ForwardHost
	}
	if u.ForwardPort != nil {
		out.ForwardPort = *u.ForwardPort
	}
	if u.CertificateID != nil {
		out.CertificateID = *u.CertificateID
	}
	if u.SSLForced != nil {
		out.SSLForced = *u.SSLForced
	}
	if u.HSTSEnabled != nil {
		out.HSTSEnabled = *u.HSTSEnabled
	}
	if u.HSTSSubdomains != nil {
		out.HSTSSubdomains = *u.HSTSSubdomains
	}
	if u.HTTP2Support != nil {
		out.HTTP2Support = *u.HTTP2Support
	}
	if u.BlockExploits != nil {
		out.BlockExploits = *u.BlockExploits
	}
	if u.CachingEnabled != nil {
		out.CachingEnabled = *u.CachingEnabled
	}
	if u.AllowWebsocketUpgrade != nil {
		out.AllowWebsocketUpgrade = *u.AllowWebsocketUpgrade
	}
	if u.AccessListID != nil {
		out.AccessListID = *u.AccessListID
	}
	if u.AdvancedConfig != nil {
		out.AdvancedConfig = *u.AdvancedConfig
	}
	if u.Enabled != nil {
		out.Enabled = *u.Enabled
	}
	if u.Meta != nil {
		out.Meta = *u.Meta
	}
	if u.Locations != nil {
		out.Locations = *u.Locations
	}
	return out
}

// CertificateCreate holds the fields NPM accepts when requesting a
// certificate. For the letsencrypt provider, Meta must carry a
// letsencrypt_email; NPM enforces that server-side.
type CertificateCreate struct {
	DomainNames []string       `json:"domain_names" validate:"required,min=1"`
	Meta        map[string]any `json:"meta"`
	NiceName    string         `json:"nice_name,omitempty"`
	Provider    string         `json:"provider" validate:"required,oneof=letsencrypt"`
}

// Certificate is a certificate as returned by NPM. Certificates are
// immutable once issued; there is no update operation.
type Certificate struct {
	ID          int            `json:"id" validate:"required,gte=1"`
	DomainNames []string       `json:"domain_names" validate:"required,min=1"`
	NiceName    string         `json:"nice_name"`
	Provider    string         `json:"provider" validate:"required"`
	Meta        map[string]any `json:"meta"`
	CreatedOn   string         `json:"created_on" validate:"required"`
	ModifiedOn  string         `json:"modified_on" validate:"required"`
	ExpiresOn   string         `json:"expires_on"`
	OwnerUserID int            `json:"owner_user_id" validate:"required,gte=1"`
}
