// Package nginx renders advanced-config snippets for NPM proxy hosts.
// The output is pasted into a host's advanced_config field (or a
// location's) rather than written to disk; NPM owns the surrounding
// server block.
package nginx

import (
	"fmt"
	"strings"
	"text/template"
)

// Default network CIDRs for access restriction snippets.
const (
	DefaultVPNNetwork = "10.10.10.0/24"
	DefaultLANNetwork = "192.168.7.0/24"
)

// DefaultAuthentikUpstream is where the goauthentik outpost listens on a
// standard docker-compose deployment.
const DefaultAuthentikUpstream = "http://authentik-server:9000"

var snippets = template.Must(template.New("snippets").Parse(`
{{- define "acl" -}}
        allow {{ .VPNNetwork }};
        allow {{ .LANNetwork }};
        deny all;
{{- end -}}

{{- define "websocket" -}}
proxy_http_version 1.1;
proxy_set_header Upgrade $http_upgrade;
proxy_set_header Connection "upgrade";
{{- end -}}

{{- define "outpost" -}}
    location /outpost.goauthentik.io {
        proxy_pass {{ .AuthentikUpstream }}/outpost.goauthentik.io;
        proxy_set_header Host $host;
        proxy_set_header X-Original-URL $scheme://$http_host$request_uri;
        add_header Set-Cookie $auth_cookie;
        auth_request_set $auth_cookie $upstream_http_set_cookie;
        internal;
    }
{{- end -}}

{{- define "bypass" -}}
{{ range .Paths }}    location {{ . }} {
        proxy_pass {{ $.Backend }};
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_http_version 1.1;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
    }
{{ end }}
{{- end -}}

{{- define "authmain" -}}
    location / {
{{- if .VPNOnly }}
{{ template "acl" . }}
{{ end }}
        auth_request /outpost.goauthentik.io/auth;
        error_page 401 = @goauthentik_proxy_signin;

        auth_request_set $auth_cookie $upstream_http_set_cookie;
        add_header Set-Cookie $auth_cookie;

        auth_request_set $authentik_username $upstream_http_x_authentik_username;
        auth_request_set $authentik_groups $upstream_http_x_authentik_groups;
        auth_request_set $authentik_email $upstream_http_x_authentik_email;
        auth_request_set $authentik_name $upstream_http_x_authentik_name;
        auth_request_set $authentik_uid $upstream_http_x_authentik_uid;

        proxy_set_header X-authentik-username $authentik_username;
        proxy_set_header X-authentik-groups $authentik_groups;
        proxy_set_header X-authentik-email $authentik_email;
        proxy_set_header X-authentik-name $authentik_name;
        proxy_set_header X-authentik-uid $authentik_uid;

        proxy_pass {{ .Backend }};
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
    }

    location @goauthentik_proxy_signin {
        internal;
        add_header Set-Cookie $auth_cookie;
        return 302 /outpost.goauthentik.io/start?rd=$request_uri;
    }
{{- end -}}
`))

// AuthentikOptions configure the forward auth snippets.
type AuthentikOptions struct {
	// Backend is the upstream the protected application listens on.
	Backend string
	// AuthentikUpstream overrides DefaultAuthentikUpstream.
	AuthentikUpstream string
	// VPNOnly restricts the authenticated location to the VPN and LAN
	// networks.
	VPNOnly    bool
	VPNNetwork string
	LANNetwork string
}

func (o *AuthentikOptions) applyDefaults() {
	if o.AuthentikUpstream == "" {
		o.AuthentikUpstream = DefaultAuthentikUpstream
	}
	if o.VPNNetwork == "" {
		o.VPNNetwork = DefaultVPNNetwork
	}
	if o.LANNetwork == "" {
		o.LANNetwork = DefaultLANNetwork
	}
}

// AuthentikForwardAuth protects every path behind a goauthentik outpost
// using nginx auth_request, forwarding the authentik identity headers to
// the backend.
func AuthentikForwardAuth(opts AuthentikOptions) (string, error) {
	opts.applyDefaults()

	var b strings.Builder
	if err := snippets.ExecuteTemplate(&b, "outpost", opts); err != nil {
		return "", fmt.Errorf("render outpost block: %w", err)
	}
	b.WriteString("\n\n")
	if err := snippets.ExecuteTemplate(&b, "authmain", opts); err != nil {
		return "", fmt.Errorf("render auth block: %w", err)
	}
	return b.String(), nil
}

// APIWebhookBypass proxies the given paths straight to the backend,
// skipping any authentication configured on other locations. Paths are
// emitted verbatim, so nginx location modifiers like "~ ^/webhook/" work.
// Websocket upgrade headers are always included; webhook endpoints are
// the usual reason these bypasses exist.
func APIWebhookBypass(backend string, paths []string) (string, error) {
	data := struct {
		Backend string
		Paths   []string
	}{Backend: backend, Paths: paths}

	var b strings.Builder
	if err := snippets.ExecuteTemplate(&b, "bypass", data); err != nil {
		return "", fmt.Errorf("render bypass blocks: %w", err)
	}
	return b.String(), nil
}

// VPNOnlyAccess returns allow/deny directives restricting access to the
// VPN and LAN networks. The snippet is inline: it carries no location
// block so it can be dropped into the host's advanced config directly.
func VPNOnlyAccess(vpnNetwork, lanNetwork string) (string, error) {
	if vpnNetwork == "" {
		vpnNetwork = DefaultVPNNetwork
	}
	if lanNetwork == "" {
		lanNetwork = DefaultLANNetwork
	}

	data := struct {
		VPNNetwork string
		LANNetwork string
	}{VPNNetwork: vpnNetwork, LANNetwork: lanNetwork}

	var b strings.Builder
	if err := snippets.ExecuteTemplate(&b, "acl", data); err != nil {
		return "", fmt.Errorf("render access snippet: %w", err)
	}
	return strings.TrimLeft(b.String(), " "), nil
}

// WebsocketSupport returns the upgrade headers needed for websocket
// proxying. Inline, no location block.
func WebsocketSupport() string {
	var b strings.Builder
	// No data needed; the template is static.
	if err := snippets.ExecuteTemplate(&b, "websocket", nil); err != nil {
		panic(err)
	}
	return b.String()
}

// AuthentikWithBypass combines forward auth with unauthenticated bypass
// paths: the bypass locations are emitted first so API and webhook
// traffic skips the outpost, everything else goes through auth_request.
func AuthentikWithBypass(opts AuthentikOptions, bypassPaths []string) (string, error) {
	opts.applyDefaults()

	bypass, err := APIWebhookBypass(opts.Backend, bypassPaths)
	if err != nil {
		return "", err
	}
	auth, err := AuthentikForwardAuth(opts)
	if err != nil {
		return "", err
	}
	return bypass + "\n" + auth, nil
}
