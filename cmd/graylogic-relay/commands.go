package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/websocket"
)

const (
	// defaultConfigPath is used when neither --config nor the environment
	// variable is set.
	defaultConfigPath = "configs/relay.yaml"

	configEnvVar = "GRAYLOGIC_RELAY_CONFIG"

	defaultTokenTTL = 30 * 24 * time.Hour
)

// newRootCmd builds the command tree. A fresh tree per call keeps tests
// independent of flag state.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "graylogic-relay",
		Short: "Gray Logic Relay - MQTT to WebSocket bridge",
		Long: `Gray Logic Relay keeps an MQTT broker session and any number of WebSocket
links alive independently, and routes messages between them through bounded
queues with drop-oldest overflow.

Commands:
  run        Start the relay
  validate   Check a configuration file and exit
  token      Issue a bearer token for a server-role socket link
  version    Show version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		fmt.Sprintf("config file path (default $%s or %s)", configEnvVar, defaultConfigPath))

	resolve := func() string { return resolveConfigPath(configPath) }

	root.AddCommand(
		newRunCmd(resolve),
		newValidateCmd(resolve),
		newTokenCmd(resolve),
		newVersionCmd(),
	)
	return root
}

// resolveConfigPath applies the flag > environment > default precedence.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

func newRunCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath())
		},
	}
}

func newValidateCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration file and exit",
		Long: `Load the configuration exactly as "run" would, apply defaults and
environment overrides, and report every validation problem at once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configPath()
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: OK\n", path)
			fmt.Fprintf(out, "  gateway:  %s\n", cfg.Gateway.ID)
			fmt.Fprintf(out, "  broker:   %s:%d\n", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port)
			for _, s := range cfg.Sockets {
				where := s.URL
				if s.Role == config.RoleServer {
					where = s.Path
				}
				fmt.Fprintf(out, "  socket:   %s (%s, %s) %s\n", s.Name, s.Role, s.Framing, where)
			}
			fmt.Fprintf(out, "  routes:   %d broker_to_socket, %d socket_to_broker\n",
				len(cfg.Routes.BrokerToSocket), len(cfg.Routes.SocketToBroker))
			return nil
		},
	}
}

func newTokenCmd(configPath func() string) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <socket>",
		Short: "Issue a bearer token for a server-role socket link",
		Long: `Sign an HS256 token that a peer presents when connecting to a server-role
socket link with auth.required set. The link's auth.secret is the key.

Example:
  graylogic-relay token panel --ttl 720h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath())
			if err != nil {
				return err
			}
			sock, ok := cfg.Socket(args[0])
			if !ok {
				return fmt.Errorf("no socket link named %q", args[0])
			}
			if sock.Role != config.RoleServer {
				return fmt.Errorf("socket link %q is not in the server role", sock.Name)
			}
			if sock.Auth.Secret == "" {
				return fmt.Errorf("socket link %q has no auth.secret", sock.Name)
			}

			token, err := websocket.GeneratePeerToken(sock.Name, sock.Auth.Secret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", defaultTokenTTL, "token lifetime")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "graylogic-relay %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
