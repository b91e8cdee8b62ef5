package npm

import (
	"context"
	"fmt"
	"net/http"
)

const certificatesPath = "/api/nginx/certificates"

// ListCertificates returns all certificates.
func (c *Client) ListCertificates(ctx context.Context) ([]Certificate, error) {
	resp, err := c.do(ctx, http.MethodGet, certificatesPath, nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.apiErr("failed to list certificates")
	}

	var certs []Certificate
	if err := decodeList(resp.body, &certs); err != nil {
		return nil, err
	}
	return certs, nil
}

// GetCertificate returns a single certificate by id.
func (c *Client) GetCertificate(ctx context.Context, id int) (*Certificate, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%d", certificatesPath, id), nil)
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusNotFound {
		return nil, resp.apiErr(fmt.Sprintf("certificate %d not found", id))
	}
	if !resp.ok() {
		return nil, resp.apiErr("failed to get certificate")
	}

	var cert Certificate
	if err := decodeOne(resp.body, &cert); err != nil {
		return nil, err
	}
	return &cert, nil
}

// CreateCertificate requests a new certificate. Issuance is asynchronous
// on the NPM side; the returned record may not carry an expiry yet.
func (c *Client) CreateCertificate(ctx context.Context, spec CertificateCreate) (*Certificate, error) {
	if err := ValidateSpec(&spec); err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, certificatesPath, spec)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.apiErr("failed to create certificate")
	}

	var cert Certificate
	if err := decodeOne(resp.body, &cert); err != nil {
		return nil, err
	}
	return &cert, nil
}

// DeleteCertificate deletes a certificate by id. There is no update
// operation; NPM treats certificates as immutable once issued, aside from
// delete and recreate.
func (c *Client) DeleteCertificate(ctx context.Context, id int) error {
	resp, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", certificatesPath, id), nil)
	if err != nil {
		return err
	}
	if resp.status == http.StatusNotFound {
		return resp.apiErr(fmt.Sprintf("certificate %d not found", id))
	}
	if !resp.ok() {
		return resp.apiErr("failed to delete certificate")
	}
	return nil
}
