// Package docker locates a running Nginx Proxy Manager container and
// derives the admin API base URL from it, so the CLI works without any
// configuration on a standard single-host setup.
package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog"
)

const (
	composeServiceLabel = "com.docker.compose.service"
	composeServiceName  = "nginx-proxy-manager"
	adminPort           = 81
)

// commonNames are container names NPM installations typically use, tried
// after the configured name and the compose label.
var commonNames = []string{"nginx-proxy-manager", "npm", "nginxproxymanager"}

// ContainerLister is the slice of the Docker API discovery needs. The
// real implementation is *client.Client; tests inject a fixture.
type ContainerLister interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
}

type Discoverer struct {
	lister ContainerLister
	logger zerolog.Logger
}

// New connects to the local Docker daemon using the standard environment
// (DOCKER_HOST et al). The connection is lazy; an unreachable daemon only
// surfaces when Discover runs, and is treated as "nothing found".
func New(logger zerolog.Logger) (*Discoverer, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Discoverer{lister: cli, logger: logger}, nil
}

// NewWithLister builds a discoverer over an existing lister.
func NewWithLister(lister ContainerLister, logger zerolog.Logger) *Discoverer {
	return &Discoverer{lister: lister, logger: logger}
}

// Discover finds a running NPM container and returns the admin API base
// URL. Candidates are tried in order: the configured container name, the
// docker-compose service label, then common container names. A missing
// container or an unreachable daemon returns empty with no error, so the
// caller falls back to its configured URL.
func (d *Discoverer) Discover(ctx context.Context, containerName string) string {
	containers, err := d.lister.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		d.logger.Debug().Err(err).Msg("docker daemon unreachable, skipping discovery")
		return ""
	}

	found := d.pick(containers, containerName)
	if found == nil {
		d.logger.Debug().Str("container", containerName).Msg("no NPM container found")
		return ""
	}

	url := baseURL(found)
	if url == "" {
		d.logger.Debug().Str("container", name(found)).Msg("NPM container found but admin port not resolvable")
		return ""
	}

	d.logger.Debug().Str("container", name(found)).Str("url", url).Msg("NPM container discovered")
	return url
}

func (d *Discoverer) pick(containers []container.Summary, containerName string) *container.Summary {
	for i := range containers {
		if hasName(&containers[i], containerName) {
			return &containers[i]
		}
	}
	for i := range containers {
		if containers[i].Labels[composeServiceLabel] == composeServiceName {
			return &containers[i]
		}
	}
	for _, candidate := range commonNames {
		for i := range containers {
			if hasName(&containers[i], candidate) {
				return &containers[i]
			}
		}
	}
	return nil
}

// hasName matches against each of the container's names, tolerating the
// leading slash the Docker API prepends.
func hasName(c *container.Summary, want string) bool {
	for _, n := range c.Names {
		if strings.TrimPrefix(n, "/") == want {
			return true
		}
	}
	return false
}

func name(c *container.Summary) string {
	if len(c.Names) == 0 {
		return c.ID
	}
	return strings.TrimPrefix(c.Names[0], "/")
}

// baseURL derives the admin API endpoint. A published admin port wins and
// maps to localhost; otherwise the container's first network IP is used
// with the internal port.
func baseURL(c *container.Summary) string {
	for _, p := range c.Ports {
		if p.PrivatePort == adminPort && p.PublicPort != 0 {
			return fmt.Sprintf("http://localhost:%d", p.PublicPort)
		}
	}

	if c.NetworkSettings != nil {
		for _, ep := range c.NetworkSettings.Networks {
			if ep != nil && ep.IPAddress != "" {
				return fmt.Sprintf("http://%s:%d", ep.IPAddress, adminPort)
			}
		}
	}
	return ""
}
