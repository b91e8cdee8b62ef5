package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/npmctl/internal/config"
	"github.com/edvin/npmctl/internal/docker"
	"github.com/edvin/npmctl/internal/logging"
	"github.com/edvin/npmctl/internal/nginx"
	"github.com/edvin/npmctl/internal/npm"
	"github.com/edvin/npmctl/internal/token"
	"github.com/edvin/npmctl/internal/workflow"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "login":
		cmdLogin(os.Args[2:])
	case "proxy":
		cmdProxy(os.Args[2:])
	case "cert":
		cmdCert(os.Args[2:])
	case "attach":
		cmdAttach(os.Args[2:])
	case "snippet":
		cmdSnippet(os.Args[2:])
	case "config":
		cmdConfig()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: npmctl <command> [arguments]

Commands:
  login    Authenticate against NPM and cache the token
  proxy    Manage proxy hosts (list, get, create, update, delete, clone)
  cert     Manage certificates (list, get, create, delete)
  attach   Request a certificate and attach it to a proxy host
  snippet  Render nginx advanced-config snippets
  config   Show the effective configuration`)
}

// env holds everything a command needs once the configuration is loaded.
type env struct {
	cfg    *config.Config
	logger zerolog.Logger
	client *npm.Client
}

func setup() *env {
	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}
	logger := logging.NewLogger(cfg)

	if !cfg.APIURLConfigured && cfg.UseDockerDiscovery {
		if d, err := docker.New(logger); err == nil {
			if url := d.Discover(context.Background(), cfg.ContainerName); url != "" {
				cfg.APIURL = url
			}
		}
	}

	store, err := token.NewStore("")
	if err != nil {
		fail(err)
	}

	client := npm.New(cfg.APIURL, store,
		npm.WithTimeout(cfg.RequestTimeout),
		npm.WithLogger(logger))

	return &env{cfg: cfg, logger: logger, client: client}
}

func (e *env) workflows() *workflow.Workflows {
	return workflow.New(e.client, e.logger)
}

// fail prints the error and exits. A missing token gets a usage hint
// instead of a bare error.
func fail(err error) {
	if errors.Is(err, npm.ErrNotAuthenticated) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run: npmctl login")
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func cmdLogin(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "NPM account email (default: NPM_USERNAME)")
	password := fs.String("password", "", "NPM account password (default: NPM_PASSWORD)")
	fs.Parse(args)

	e := setup()

	user := *username
	if user == "" {
		user = e.cfg.Username
	}
	pass := *password
	if pass == "" {
		pass = e.cfg.Password
	}
	if user == "" || pass == "" {
		fmt.Fprintln(os.Stderr, "Missing credentials: pass -username/-password or set NPM_USERNAME/NPM_PASSWORD")
		os.Exit(1)
	}

	cred, err := e.client.Login(context.Background(), user, pass)
	if err != nil {
		fail(err)
	}

	fmt.Printf("Logged in to %s, token valid until %s\n", e.cfg.APIURL, cred.Expires.Local().Format("2006-01-02 15:04"))
}

func cmdProxy(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: npmctl proxy <list|get|create|update|delete|clone> [arguments]")
		os.Exit(1)
	}

	switch args[0] {
	case "list":
		cmdProxyList()
	case "get":
		cmdProxyGet(args[1:])
	case "create":
		cmdProxyCreate(args[1:])
	case "update":
		cmdProxyUpdate(args[1:])
	case "delete":
		cmdProxyDelete(args[1:])
	case "clone":
		cmdProxyClone(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown proxy subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func cmdProxyList() {
	e := setup()

	hosts, err := e.client.ListProxyHosts(context.Background())
	if err != nil {
		fail(err)
	}

	if len(hosts) == 0 {
		fmt.Println("No proxy hosts found.")
		return
	}

	fmt.Printf("%-5s %-40s %-30s %-6s %-8s\n", "ID", "DOMAINS", "FORWARD", "CERT", "ENABLED")
	for _, h := range hosts {
		forward := fmt.Sprintf("%s://%s:%d", h.ForwardScheme, h.ForwardHost, h.ForwardPort)
		fmt.Printf("%-5d %-40s %-30s %-6s %-8t\n",
			h.ID, strings.Join(h.DomainNames, ","), forward, h.CertificateID.String(), h.Enabled)
	}
}

func cmdProxyGet(args []string) {
	id := parseID(args, "npmctl proxy get <id>")
	e := setup()

	host, err := e.client.GetProxyHost(context.Background(), id)
	if err != nil {
		fail(err)
	}
	printProxyHost(host)
}

func printProxyHost(h *npm.ProxyHost) {
	fmt.Printf("ID:           %d\n", h.ID)
	fmt.Printf("Domains:      %s\n", strings.Join(h.DomainNames, ", "))
	fmt.Printf("Forward:      %s://%s:%d\n", h.ForwardScheme, h.ForwardHost, h.ForwardPort)
	fmt.Printf("Certificate:  %s\n", h.CertificateID.String())
	fmt.Printf("SSL forced:   %t\n", h.SSLForced)
	fmt.Printf("HSTS:         %t\n", h.HSTSEnabled)
	fmt.Printf("HTTP/2:       %t\n", h.HTTP2Support)
	fmt.Printf("Websockets:   %t\n", h.AllowWebsocketUpgrade)
	fmt.Printf("Block exploits: %t\n", h.BlockExploits)
	fmt.Printf("Enabled:      %t\n", h.Enabled)
	if h.AdvancedConfig != "" {
		fmt.Printf("Advanced config:\n%s\n", h.AdvancedConfig)
	}
}

// proxyFlags registers the writable proxy host fields on a flag set so
// create and update share one definition.
type proxyFlags struct {
	domains       *string
	scheme        *string
	host          *string
	port          *int
	cert          *string
	sslForced     *bool
	hsts          *bool
	http2         *bool
	websockets    *bool
	blockExploits *bool
	caching       *bool
	advanced      *string
	enabled       *bool
}

func registerProxyFlags(fs *flag.FlagSet) *proxyFlags {
	return &proxyFlags{
		domains:       fs.String("domains", "", "Comma-separated domain names"),
		scheme:        fs.String("scheme", "http", "Forward scheme (http or https)"),
		host:          fs.String("forward-host", "", "Upstream host or IP"),
		port:          fs.Int("forward-port", 0, "Upstream port"),
		cert:          fs.String("cert", "", "Certificate: an id, or \"new\" to provision inline"),
		sslForced:     fs.Bool("ssl-forced", false, "Redirect HTTP to HTTPS"),
		hsts:          fs.Bool("hsts", false, "Enable HSTS"),
		http2:         fs.Bool("http2", false, "Enable HTTP/2"),
		websockets:    fs.Bool("websockets", false, "Allow websocket upgrade"),
		blockExploits: fs.Bool("block-exploits", false, "Block common exploits"),
		caching:       fs.Bool("caching", false, "Enable asset caching"),
		advanced:      fs.String("advanced-config", "", "Raw nginx snippet for the advanced config field"),
		enabled:       fs.Bool("enabled", true, "Enable the host"),
	}
}

func parseCertFlag(value string) (npm.CertificateID, error) {
	if value == "" {
		return npm.CertificateID{}, nil
	}
	if value == "new" {
		return npm.ProvisionNewCertificate(), nil
	}
	id, err := strconv.Atoi(value)
	if err != nil || id <= 0 {
		return npm.CertificateID{}, fmt.Errorf("invalid -cert %q: want a positive id or \"new\"", value)
	}
	return npm.ExistingCertificate(id), nil
}

func splitDomains(value string) []string {
	var out []string
	for _, d := range strings.Split(value, ",") {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

func cmdProxyCreate(args []string) {
	fs := flag.NewFlagSet("proxy create", flag.ExitOnError)
	pf := registerProxyFlags(fs)
	fs.Parse(args)

	certID, err := parseCertFlag(*pf.cert)
	if err != nil {
		fail(err)
	}

	spec := npm.ProxyHostCreate{
		DomainNames:           splitDomains(*pf.domains),
		ForwardScheme:         *pf.scheme,
		ForwardHost:           *pf.host,
		ForwardPort:           *pf.port,
		CertificateID:         certID,
		SSLForced:             *pf.sslForced,
		HSTSEnabled:           *pf.hsts,
		HTTP2Support:          *pf.http2,
		AllowWebsocketUpgrade: *pf.websockets,
		BlockExploits:         *pf.blockExploits,
		CachingEnabled:        *pf.caching,
		AdvancedConfig:        *pf.advanced,
		Enabled:               *pf.enabled,
		Meta:                  map[string]any{},
		Locations:             []npm.Location{},
	}

	e := setup()
	host, err := e.client.CreateProxyHost(context.Background(), spec)
	if err != nil {
		fail(err)
	}

	fmt.Printf("Created proxy host %d for %s\n", host.ID, strings.Join(host.DomainNames, ", "))
}

func cmdProxyUpdate(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: npmctl proxy update <id> [flags]")
		os.Exit(1)
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		fail(fmt.Errorf("invalid proxy host id %q", args[0]))
	}

	fs := flag.NewFlagSet("proxy update", flag.ExitOnError)
	pf := registerProxyFlags(fs)
	fs.Parse(args[1:])

	// Only flags the user actually set become part of the change set;
	// everything else keeps its current server-side value.
	var changes npm.ProxyHostUpdate
	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "domains":
			d := splitDomains(*pf.domains)
			changes.DomainNames = &d
		case "scheme":
			changes.ForwardScheme = pf.scheme
		case "forward-host":
			changes.ForwardHost = pf.host
		case "forward-port":
			changes.ForwardPort = pf.port
		case "cert":
			certID, err := parseCertFlag(*pf.cert)
			if err != nil {
				flagErr = err
				return
			}
			changes.CertificateID = &certID
		case "ssl-forced":
			changes.SSLForced = pf.sslForced
		case "hsts":
			changes.HSTSEnabled = pf.hsts
		case "http2":
			changes.HTTP2Support = pf.http2
		case "websockets":
			changes.AllowWebsocketUpgrade = pf.websockets
		case "block-exploits":
			changes.BlockExploits = pf.blockExploits
		case "caching":
			changes.CachingEnabled = pf.caching
		case "advanced-config":
			changes.AdvancedConfig = pf.advanced
		case "enabled":
			changes.Enabled = pf.enabled
		}
	})
	if flagErr != nil {
		fail(flagErr)
	}

	e := setup()
	host, err := e.client.UpdateProxyHost(context.Background(), id, changes)
	if err != nil {
		fail(err)
	}

	fmt.Printf("Updated proxy host %d\n", host.ID)
}

func cmdProxyDelete(args []string) {
	id := parseID(args, "npmctl proxy delete <id>")
	e := setup()

	if err := e.client.DeleteProxyHost(context.Background(), id); err != nil {
		fail(err)
	}
	fmt.Printf("Deleted proxy host %d\n", id)
}

// cloneArgs is the parsed form of "proxy clone <id-or-domain> -domains
// D1,D2 [-ssl]". The identifier is positional and comes first, so it is
// split off before the flag set runs; stdlib flag stops at the first
// non-flag argument.
type cloneArgs struct {
	source  string
	domains []string
	ssl     bool
}

func parseCloneArgs(args []string) (*cloneArgs, error) {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		return nil, errors.New("usage: npmctl proxy clone <id-or-domain> -domains <new-domains> [-ssl]")
	}

	fs := flag.NewFlagSet("proxy clone", flag.ContinueOnError)
	domains := fs.String("domains", "", "Comma-separated domain names for the clone")
	ssl := fs.Bool("ssl", false, "Provision a certificate for the clone when the source has one")
	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}

	parsed := splitDomains(*domains)
	if len(parsed) == 0 {
		return nil, errors.New("usage: npmctl proxy clone <id-or-domain> -domains <new-domains> [-ssl]")
	}

	return &cloneArgs{source: args[0], domains: parsed, ssl: *ssl}, nil
}

func cmdProxyClone(args []string) {
	ca, err := parseCloneArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	e := setup()
	clone, err := e.workflows().CloneProxyHost(context.Background(), ca.source, ca.domains, ca.ssl)
	if err != nil {
		fail(err)
	}

	fmt.Printf("Cloned %s to proxy host %d (%s)\n", ca.source, clone.ID, strings.Join(clone.DomainNames, ", "))
	if id, ok := clone.CertificateID.ID(); ok {
		fmt.Printf("Certificate %d attached\n", id)
	}
}

func cmdCert(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: npmctl cert <list|get|create|delete> [arguments]")
		os.Exit(1)
	}

	switch args[0] {
	case "list":
		cmdCertList()
	case "get":
		cmdCertGet(args[1:])
	case "create":
		cmdCertCreate(args[1:])
	case "delete":
		cmdCertDelete(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown cert subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func cmdCertList() {
	e := setup()

	certs, err := e.client.ListCertificates(context.Background())
	if err != nil {
		fail(err)
	}

	if len(certs) == 0 {
		fmt.Println("No certificates found.")
		return
	}

	fmt.Printf("%-5s %-40s %-12s %s\n", "ID", "DOMAINS", "PROVIDER", "EXPIRES")
	for _, c := range certs {
		expires := c.ExpiresOn
		if expires == "" {
			expires = "-"
		}
		fmt.Printf("%-5d %-40s %-12s %s\n", c.ID, strings.Join(c.DomainNames, ","), c.Provider, expires)
	}
}

func cmdCertGet(args []string) {
	id := parseID(args, "npmctl cert get <id>")
	e := setup()

	cert, err := e.client.GetCertificate(context.Background(), id)
	if err != nil {
		fail(err)
	}

	fmt.Printf("ID:        %d\n", cert.ID)
	fmt.Printf("Domains:   %s\n", strings.Join(cert.DomainNames, ", "))
	fmt.Printf("Provider:  %s\n", cert.Provider)
	if cert.NiceName != "" {
		fmt.Printf("Name:      %s\n", cert.NiceName)
	}
	if cert.ExpiresOn != "" {
		fmt.Printf("Expires:   %s\n", cert.ExpiresOn)
	}
}

func cmdCertCreate(args []string) {
	fs := flag.NewFlagSet("cert create", flag.ExitOnError)
	domains := fs.String("domains", "", "Comma-separated domain names to certify")
	email := fs.String("email", "", "Letsencrypt account email")
	name := fs.String("name", "", "Display name")
	fs.Parse(args)

	if *domains == "" || *email == "" {
		fmt.Fprintln(os.Stderr, "Usage: npmctl cert create -domains <domains> -email <email> [-name NAME]")
		os.Exit(1)
	}

	e := setup()
	cert, err := e.client.CreateCertificate(context.Background(), npm.CertificateCreate{
		DomainNames: splitDomains(*domains),
		Provider:    "letsencrypt",
		NiceName:    *name,
		Meta: map[string]any{
			"letsencrypt_email": *email,
			"letsencrypt_agree": true,
		},
	})
	if err != nil {
		fail(err)
	}

	fmt.Printf("Requested certificate %d for %s\n", cert.ID, strings.Join(cert.DomainNames, ", "))
}

func cmdCertDelete(args []string) {
	id := parseID(args, "npmctl cert delete <id>")
	e := setup()

	if err := e.client.DeleteCertificate(context.Background(), id); err != nil {
		fail(err)
	}
	fmt.Printf("Deleted certificate %d\n", id)
}

func cmdAttach(args []string) {
	fs := flag.NewFlagSet("attach", flag.ExitOnError)
	domain := fs.String("domain", "", "Domain of the proxy host to attach to")
	domains := fs.String("cert-domains", "", "Domains to certify (default: the -domain value)")
	email := fs.String("email", "", "Letsencrypt account email")
	sslForced := fs.Bool("ssl-forced", false, "Also force HTTPS on the host")
	hsts := fs.Bool("hsts", false, "Also enable HSTS on the host")
	http2 := fs.Bool("http2", false, "Also enable HTTP/2 on the host")
	fs.Parse(args)

	if *domain == "" || *email == "" {
		fmt.Fprintln(os.Stderr, "Usage: npmctl attach -domain <domain> -email <email> [-cert-domains D1,D2] [-ssl-forced] [-hsts] [-http2]")
		os.Exit(1)
	}

	certDomains := splitDomains(*domains)
	if len(certDomains) == 0 {
		certDomains = []string{*domain}
	}

	e := setup()
	cert, host, err := e.workflows().AttachCertificate(context.Background(), *domain, npm.CertificateCreate{
		DomainNames: certDomains,
		Provider:    "letsencrypt",
		Meta: map[string]any{
			"letsencrypt_email": *email,
			"letsencrypt_agree": true,
		},
	}, workflow.AttachOptions{
		SSLForced:    *sslForced,
		HSTSEnabled:  *hsts,
		HTTP2Support: *http2,
	})
	if err != nil {
		fail(err)
	}

	fmt.Printf("Certificate %d attached to proxy host %d (%s)\n", cert.ID, host.ID, *domain)
}

func cmdSnippet(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: npmctl snippet <authentik|bypass|vpn-only|websocket|authentik-bypass> [flags]")
		os.Exit(1)
	}

	fs := flag.NewFlagSet("snippet", flag.ExitOnError)
	backend := fs.String("backend", "", "Upstream the application listens on, e.g. http://app:8000")
	paths := fs.String("paths", "", "Comma-separated bypass paths, location modifiers allowed")
	vpnOnly := fs.Bool("vpn-only", false, "Restrict access to the VPN and LAN networks")
	vpnNetwork := fs.String("vpn-network", "", "VPN CIDR (default "+nginx.DefaultVPNNetwork+")")
	lanNetwork := fs.String("lan-network", "", "LAN CIDR (default "+nginx.DefaultLANNetwork+")")
	authentikURL := fs.String("authentik-url", "", "Authentik outpost upstream (default "+nginx.DefaultAuthentikUpstream+")")
	fs.Parse(args[1:])

	opts := nginx.AuthentikOptions{
		Backend:           *backend,
		AuthentikUpstream: *authentikURL,
		VPNOnly:           *vpnOnly,
		VPNNetwork:        *vpnNetwork,
		LANNetwork:        *lanNetwork,
	}

	requireBackend := func() {
		if *backend == "" {
			fmt.Fprintln(os.Stderr, "Missing -backend")
			os.Exit(1)
		}
	}

	var snippet string
	var err error
	switch args[0] {
	case "authentik":
		requireBackend()
		snippet, err = nginx.AuthentikForwardAuth(opts)
	case "bypass":
		requireBackend()
		if *paths == "" {
			fmt.Fprintln(os.Stderr, "Missing -paths")
			os.Exit(1)
		}
		snippet, err = nginx.APIWebhookBypass(*backend, splitSnippetPaths(*paths))
	case "vpn-only":
		snippet, err = nginx.VPNOnlyAccess(*vpnNetwork, *lanNetwork)
	case "websocket":
		snippet = nginx.WebsocketSupport()
	case "authentik-bypass":
		requireBackend()
		if *paths == "" {
			fmt.Fprintln(os.Stderr, "Missing -paths")
			os.Exit(1)
		}
		snippet, err = nginx.AuthentikWithBypass(opts, splitSnippetPaths(*paths))
	default:
		fmt.Fprintf(os.Stderr, "Unknown snippet: %s\n", args[0])
		os.Exit(1)
	}
	if err != nil {
		fail(err)
	}

	fmt.Println(snippet)
}

// splitSnippetPaths splits on commas but keeps interior whitespace, so
// regex locations like "~ ^/webhook(-test)?/" survive.
func splitSnippetPaths(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cmdConfig() {
	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}

	source := "default"
	if cfg.APIURLConfigured {
		source = "NPM_API_URL"
	}

	fmt.Printf("API URL:          %s (%s)\n", cfg.APIURL, source)
	fmt.Printf("Container name:   %s\n", cfg.ContainerName)
	fmt.Printf("Docker discovery: %t\n", cfg.UseDockerDiscovery)
	fmt.Printf("Username:         %s\n", orDash(cfg.Username))
	fmt.Printf("Password:         %s\n", maskSecret(cfg.Password))
	fmt.Printf("Log level:        %s\n", cfg.LogLevel)
	fmt.Printf("Request timeout:  %s\n", cfg.RequestTimeout)
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

func maskSecret(v string) string {
	if v == "" {
		return "-"
	}
	return "********"
}

func parseID(args []string, usage string) int {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s\n", usage)
		os.Exit(1)
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		fail(fmt.Errorf("invalid id %q", args[0]))
	}
	return id
}
