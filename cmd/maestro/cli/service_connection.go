// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"io/fs"
	"os"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/maestro-foundation/maestro/lib/service"
)

// ServiceConnection manages the socket flag for CLI commands that
// connect to Maestro services over their Unix control sockets.
//
// Implements [FlagBinder] so it integrates with the params struct
// system when embedded in command parameter structs.
//
// Not used directly. Each service defines a wrapper type (e.g.,
// CampaignConnection) that embeds ServiceConnection and overrides
// AddFlags to supply the service-specific configuration. This allows
// zero-value construction in params structs while keeping the shared
// logic here. Create configured instances with [NewServiceConnection].
type ServiceConnection struct {
	SocketPath string

	// Unexported configuration set at construction time.
	serviceRole string
	socketEnv   string
	socketPath  string
}

// ServiceConnectionConfig configures a [ServiceConnection] for a
// specific service role.
type ServiceConnectionConfig struct {
	// Role is the service role name used in flag help text and
	// diagnostics (e.g., "campaign").
	Role string

	// SocketEnvVar is the environment variable name for overriding
	// the default socket path (e.g., "MAESTRO_CAMPAIGN_SOCKET").
	SocketEnvVar string

	// DefaultSocket is the socket path used when neither the flag nor
	// the environment variable is set (e.g., "/run/maestro/campaign.sock").
	DefaultSocket string
}

// NewServiceConnection creates a ServiceConnection configured for a
// specific service role. The returned value is ready to embed in a
// command params struct; call AddFlags during flag registration.
func NewServiceConnection(config ServiceConnectionConfig) ServiceConnection {
	return ServiceConnection{
		serviceRole: config.Role,
		socketEnv:   config.SocketEnvVar,
		socketPath:  config.DefaultSocket,
	}
}

// AddFlags registers the --socket flag. The default comes from the
// environment variable if set, otherwise from the path configured at
// construction time.
func (c *ServiceConnection) AddFlags(flagSet *pflag.FlagSet) {
	socketDefault := c.socketPath
	if envSocket := os.Getenv(c.socketEnv); envSocket != "" {
		socketDefault = envSocket
	}
	flagSet.StringVar(&c.SocketPath, "socket", socketDefault, c.serviceRole+" service socket path")
}

// Connect checks that the service socket exists and returns a client
// for it. A missing socket produces a not-found error with a hint;
// actual connection failures surface later, on the first call, since
// the client dials per request.
func (c *ServiceConnection) Connect() (*service.ServiceClient, error) {
	if c.serviceRole == "" {
		return nil, Internal("ServiceConnection not configured: call AddFlags before Connect")
	}

	if _, err := os.Stat(c.SocketPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NotFound("service socket %s does not exist", c.SocketPath).
				WithHint("Is the maestro-%s-service running? "+
					"Override the socket path with --socket or %s.", c.serviceRole, c.socketEnv)
		}
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			return nil, Internal("permission denied accessing %s", c.SocketPath).
				WithHint("Check the socket's ownership and permissions: ls -la %s", c.SocketPath)
		}
		return nil, Internal("stat service socket %s: %w", c.SocketPath, err)
	}

	return service.NewServiceClient(c.SocketPath), nil
}
