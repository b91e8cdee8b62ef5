package npm

import (
	"context"
	"fmt"
	"net/http"
)

const proxyHostsPath = "/api/nginx/proxy-hosts"

// ListProxyHosts returns all proxy hosts.
func (c *Client) ListProxyHosts(ctx context.Context) ([]ProxyHost, error) {
	resp, err := c.do(ctx, http.MethodGet, proxyHostsPath, nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.apiErr("failed to list proxy hosts")
	}

	var hosts []ProxyHost
	if err := decodeList(resp.body, &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

// GetProxyHost returns a single proxy host by id.
func (c *Client) GetProxyHost(ctx context.Context, id int) (*ProxyHost, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%d", proxyHostsPath, id), nil)
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusNotFound {
		return nil, resp.apiErr(fmt.Sprintf("proxy host %d not found", id))
	}
	if !resp.ok() {
		return nil, resp.apiErr("failed to get proxy host")
	}

	var host ProxyHost
	if err := decodeOne(resp.body, &host); err != nil {
		return nil, err
	}
	return &host, nil
}

// CreateProxyHost creates a proxy host and returns the server-assigned
// record, read-only fields included.
func (c *Client) CreateProxyHost(ctx context.Context, spec ProxyHostCreate) (*ProxyHost, error) {
	if err := ValidateSpec(&spec); err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, proxyHostsPath, spec)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.apiErr("failed to create proxy host")
	}

	var host ProxyHost
	if err := decodeOne(resp.body, &host); err != nil {
		return nil, err
	}
	return &host, nil
}

// UpdateProxyHost applies a partial change set. NPM's PUT requires the
// entire writable record and rejects read-only fields, so this is a
// read-merge-write: fetch the current record, project it to writable
// fields, overlay the changes, and PUT the merged result. The sequence is
// not transactional; a concurrent external modification between the GET
// and the PUT is silently overwritten.
func (c *Client) UpdateProxyHost(ctx context.Context, id int, changes ProxyHostUpdate) (*ProxyHost, error) {
	if err := ValidateSpec(&changes); err != nil {
		return nil, err
	}

	current, err := c.GetProxyHost(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := changes.Apply(current.Writable())

	resp, err := c.do(ctx, http.MethodPut, fmt.Sprintf("%s/%d", proxyHostsPath, id), merged)
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusNotFound {
		return nil, resp.apiErr(fmt.Sprintf("proxy host %d not found", id))
	}
	if !resp.ok() {
		return nil, resp.apiErr("failed to update proxy host")
	}

	var host ProxyHost
	if err := decodeOne(resp.body, &host); err != nil {
		return nil, err
	}
	return &host, nil
}

// DeleteProxyHost deletes a proxy host by id.
func (c *Client) DeleteProxyHost(ctx context.Context, id int) error {
	resp, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", proxyHostsPath, id), nil)
	if err != nil {
		return err
	}
	if resp.status == http.StatusNotFound {
		return resp.apiErr(fmt.Sprintf("proxy host %d not found", id))
	}
	if !resp.ok() {
		return resp.apiErr("failed to delete proxy host")
	}
	return nil
}
