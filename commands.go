package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	retry "github.com/appleboy/go-httpretry"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/go-lightwave/linkplus/lightwave"
	"github.com/go-lightwave/linkplus/lightwave/redisstore"
	"github.com/go-lightwave/linkplus/tui"
)

// credentialsAnnotation marks commands that never call the API.
const credentialsAnnotation = "credentials"

// snapshotStore is a lightwave.Store that can also forget its snapshot.
type snapshotStore interface {
	lightwave.Store
	Delete(ctx context.Context) error
}

// app carries the state shared by all commands of one invocation.
type app struct {
	display tui.Displayer
	stdout  io.Writer
	logs    io.Writer
	flags   cliFlags

	cfg     *Config
	store   snapshotStore
	client  *lightwave.Client
	closers []func() error
}

// newApp creates the command state. Structured logs go to logs unless a log file
// is configured.
func newApp(d tui.Displayer, stdout, logs io.Writer) *app {
	return &app{display: d, stdout: stdout, logs: logs}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "linkplus",
		Short: "Control LightwaveRF LinkPlus devices",
		Long: `Control LightwaveRF LinkPlus devices from the command line.

The bearer ID and a refresh token come from your LightwaveRF account settings.
Rotated tokens are saved after every refresh so the configured refresh token is
only needed on the first run or after the saved one has been revoked.

Configuration priority: flag > environment (LINKPLUS_*, .env) > default.

Examples:
  # List the devices in your first structure, with current values
  linkplus devices --values

  # Turn a device on by name
  linkplus switch "Hall light" on`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.bearerID, "bearer-id", "", "LinkPlus bearer ID (or LINKPLUS_BEARER_ID)")
	pf.StringVar(&a.flags.refreshToken, "refresh-token", "",
		"Seed refresh token (or LINKPLUS_REFRESH_TOKEN)")
	pf.StringVar(&a.flags.tokenFile, "token-file", "",
		"Token snapshot file (default: <user config dir>/linkplus/auth_response.json)")
	pf.StringVar(&a.flags.apiURL, "api-url", "", "LinkPlus API URL (or LINKPLUS_API_URL)")
	pf.StringVar(&a.flags.authURL, "auth-url", "", "LinkPlus token service URL (or LINKPLUS_AUTH_URL)")
	pf.StringVar(&a.flags.redisAddr, "redis-addr", "",
		"Keep the token snapshot in Redis at host:port instead of a file")
	pf.StringVar(&a.flags.logFile, "log-file", "",
		"Append structured logs to this file (or LINKPLUS_LOG_FILE)")

	root.AddCommand(
		a.structuresCmd(),
		a.devicesCmd(),
		a.getCmd(),
		a.setCmd(),
		a.switchCmd(),
		a.logoutCmd(),
	)
	return root
}

// setup loads the configuration and builds the store and, unless the command is
// annotated otherwise, the API client.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "help" || (cmd.HasParent() && cmd.Parent().Name() == "completion") {
		return nil
	}
	needCredentials := cmd.Annotations[credentialsAnnotation] != "none"

	cfg, err := loadConfig(a.flags, needCredentials)
	if err != nil {
		return err
	}
	a.cfg = cfg

	for _, u := range insecureURLs(cfg) {
		a.display.Warning(u + " uses HTTP instead of HTTPS. Tokens will be transmitted in plaintext!")
	}

	a.store = a.openStore()
	if !needCredentials {
		return nil
	}

	logs, err := a.logWriter()
	if err != nil {
		return err
	}

	retryClient, err := retry.NewClient(
		retry.WithHTTPClient(newHTTPClient()),
		retry.WithMaxRetries(cfg.RetryMax),
	)
	if err != nil {
		return fmt.Errorf("failed to create retry client: %w", err)
	}

	a.client, err = lightwave.NewClient(
		lightwave.SeedCredential{BearerID: cfg.BearerID, SeedRefreshToken: cfg.RefreshToken},
		lightwave.WithBaseURL(cfg.APIURL),
		lightwave.WithAuthURL(cfg.AuthURL),
		lightwave.WithRetryClient(retryClient),
		lightwave.WithStore(a.store),
		lightwave.WithLogger(lightwave.NewLogger(cfg.LogLevel, cfg.LogFormat, logs)),
		lightwave.WithObserver(a.display),
	)
	return err
}

func (a *app) openStore() snapshotStore {
	if a.cfg.RedisAddr == "" {
		return lightwave.NewFileStore(a.cfg.TokenFile)
	}
	rdb := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
	a.closers = append(a.closers, rdb.Close)
	return redisstore.New(rdb, redisstore.WithKey(a.cfg.RedisKey))
}

func (a *app) logWriter() (io.Writer, error) {
	if a.cfg.LogFile == "" {
		return a.logs, nil
	}
	f, err := os.OpenFile(a.cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	a.closers = append(a.closers, f.Close)
	return f, nil
}

func (a *app) close() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}

func (a *app) structuresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "structures",
		Short: "List the structure IDs of the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.display.Working("Reading structures")
			ids, err := a.client.Structures(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(a.stdout, id)
			}
			a.display.Done(plural(len(ids), "structure"))
			return nil
		},
	}
}

func (a *app) devicesCmd() *cobra.Command {
	var (
		structureID string
		withValues  bool
	)
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List devices and their features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.display.Working("Listing devices")
			s, err := a.structure(cmd.Context(), structureID)
			if err != nil {
				return err
			}

			if withValues {
				a.display.Working("Reading feature values")
				for _, d := range s.Devices {
					if err := a.client.PopulateFeatureValues(cmd.Context(), d); err != nil {
						return fmt.Errorf("read values of %s: %w", d.Name, err)
					}
				}
			}

			writeDevices(a.stdout, s.Devices)
			a.display.Done(fmt.Sprintf("%s in %s", plural(len(s.Devices), "device"), structureLabel(s)))
			return nil
		},
	}
	cmd.Flags().StringVar(&structureID, "structure", "", "Structure ID (default: first structure)")
	cmd.Flags().BoolVar(&withValues, "values", false, "Also read the current value of every feature")
	return cmd
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get FEATURE_ID",
		Short: "Read the value of a feature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.display.Working("Reading feature " + args[0])
			v, err := a.client.FeatureValue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, v)
			a.display.Done(fmt.Sprintf("%s = %d", args[0], v))
			return nil
		},
	}
}

func (a *app) setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set FEATURE_ID VALUE",
		Short: "Write a new value to a feature",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: value must be an integer, got %q", lightwave.ErrInvalidArgument, args[1])
			}

			a.display.Working("Writing feature " + args[0])
			if err := a.client.SetFeatureValue(cmd.Context(), args[0], v); err != nil {
				return err
			}
			a.display.Done(fmt.Sprintf("%s set to %d", args[0], v))
			return nil
		},
	}
}

func (a *app) switchCmd() *cobra.Command {
	var structureID string
	cmd := &cobra.Command{
		Use:       "switch DEVICE_NAME on|off|toggle",
		Short:     "Turn a device on or off by name",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off", "toggle"},
		RunE: func(cmd *cobra.Command, args []string) error {
			name, action := args[0], strings.ToLower(args[1])
			if action != "on" && action != "off" && action != "toggle" {
				return fmt.Errorf("%w: action must be on, off or toggle, got %q",
					lightwave.ErrInvalidArgument, args[1])
			}

			a.display.Working("Switching " + name)
			s, err := a.structure(cmd.Context(), structureID)
			if err != nil {
				return err
			}
			d, err := s.DeviceByName(name)
			if err != nil {
				return err
			}

			on := action == "on"
			if action == "toggle" {
				current, err := a.client.SwitchState(cmd.Context(), d)
				if err != nil {
					return err
				}
				on = !current
			}

			if err := a.client.SetSwitchState(cmd.Context(), d, on); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s is now %s\n", d.Name, onOff(on))
			a.display.Done(fmt.Sprintf("%s switched %s", d.Name, onOff(on)))
			return nil
		},
	}
	cmd.Flags().StringVar(&structureID, "structure", "", "Structure ID (default: first structure)")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "logout",
		Short:       "Delete the saved token snapshot",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{credentialsAnnotation: "none"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.store.Delete(cmd.Context()); err != nil {
				return err
			}
			a.display.Done("Saved tokens removed")
			return nil
		},
	}
}

func (a *app) structure(ctx context.Context, id string) (*lightwave.Structure, error) {
	if id == "" {
		return a.client.FirstStructure(ctx)
	}
	return a.client.Structure(ctx, id)
}

// writeDevices prints one block per device with a row per feature.
func writeDevices(w io.Writer, devices []*lightwave.Device) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t\n", d.Name, d.ID)
		for _, f := range d.Features {
			value := ""
			if f.Value != nil {
				value = strconv.Itoa(*f.Value)
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.Type, f.ID, value)
		}
	}
	_ = tw.Flush()
}

func structureLabel(s *lightwave.Structure) string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// exitHint decorates err for the displayer.
func exitHint(d tui.Displayer, err error) {
	if errors.Is(err, lightwave.ErrInvalidCredential) {
		d.ReAuthRequired()
	}
	d.Fatal(err)
}

// newHTTPClient is the transport wrapped by go-httpretry.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   lightwave.DefaultTimeout,
		Transport: newTransport(),
	}
}
