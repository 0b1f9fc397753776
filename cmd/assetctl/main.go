package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tendant/assetsync/pkg/assetsync/config"
)

var version = "dev"

// cli carries the state shared by all subcommands of one invocation.
type cli struct {
	v   *viper.Viper
	out io.Writer

	cfg *config.ServerConfig
	rt  *config.Runtime
}

func newRootCmd(c *cli) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "assetctl",
		Version: version,
		Short:   "Manage objects and their metadata records",
		Long: `assetctl talks to the blob store and metadata index directly, using
the same configuration as assetsync-server.

Configuration is layered: defaults, service environment variables
(read with --env-prefix), the config file, ASSETCTL_* variables and
finally flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.readConfig(cmd)
		},
	}
	rootCmd.SetOut(c.out)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file path (default: ./assetctl.yaml)")
	flags.String("env-prefix", "", "prefix of the service environment variables (env: ASSETCTL_ENV_PREFIX)")
	flags.String("storage-url", "", "blob store: memory, file://<dir> or s3://<bucket> (env: ASSETCTL_STORAGE_URL)")
	flags.String("index-url", "", "metadata index: memory, sqlite://<path> or postgres://... (env: ASSETCTL_INDEX_URL)")
	flags.String("index-table", "", "metadata table name (env: ASSETCTL_INDEX_TABLE)")
	flags.String("redis-url", "", "redis URL for the metadata cache (env: ASSETCTL_REDIS_URL)")
	flags.String("public-base-url", "", "CDN base URL recorded as public_url (env: ASSETCTL_PUBLIC_BASE_URL)")
	flags.String("log-level", "", "log level: debug, info, warn, error (default: warn)")

	bindFlags(c.v, flags, "env-prefix", "storage-url", "index-url", "index-table", "redis-url", "public-base-url", "log-level")

	rootCmd.AddCommand(
		c.uploadCmd(),
		c.downloadCmd(),
		c.listCmd(),
		c.searchCmd(),
		c.headCmd(),
		c.urlCmd(),
		c.copyCmd(),
		c.deleteCmd(),
		c.updateCmd(),
		c.resyncCmd(),
		c.migrateCmd(),
		c.reindexCmd(),
		c.configCmd(),
	)
	return rootCmd
}

// execute runs one command line and releases the runtime it built, even
// when the command fails.
func execute(out io.Writer, args []string) error {
	c := &cli{v: viper.New(), out: out}
	rootCmd := newRootCmd(c)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	if c.rt != nil {
		err = errors.Join(err, c.rt.Close())
	}
	return err
}

// readConfig loads the config file and environment into viper and builds
// the service configuration from it.
func (c *cli) readConfig(cmd *cobra.Command) error {
	c.v.SetDefault("log_level", "warn")

	configFile, _ := cmd.Flags().GetString("config")
	if configFile != "" {
		c.v.SetConfigFile(configFile)
	} else {
		c.v.SetConfigName("assetctl")
		c.v.SetConfigType("yaml")
		c.v.AddConfigPath(".")
	}

	c.v.SetEnvPrefix("ASSETCTL")
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	c.v.AutomaticEnv()

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	opts := []config.Option{
		config.WithEnv(c.v.GetString("env_prefix")),
		config.WithLogLevel(c.v.GetString("log_level")),
		// One-shot commands log their own results.
		config.WithEventLogging(false),
	}
	if s := c.v.GetString("storage_url"); s != "" {
		opts = append(opts, config.WithStorageURL(s))
	}
	if s := c.v.GetString("index_url"); s != "" {
		opts = append(opts, config.WithIndexURL(s))
	}
	if s := c.v.GetString("index_table"); s != "" {
		opts = append(opts, config.WithIndexTable(s))
	}
	if s := c.v.GetString("redis_url"); s != "" {
		opts = append(opts, config.WithRedisCache(s, 0))
	}
	if s := c.v.GetString("public_base_url"); s != "" {
		opts = append(opts, config.WithPublicBaseURL(s))
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

// bindFlags binds each flag to the viper key with dashes replaced by underscores
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		_ = v.BindPFlag(strings.ReplaceAll(name, "-", "_"), flags.Lookup(name))
	}
}

// runtime builds the service on first use
func (c *cli) runtime(ctx context.Context) (*config.Runtime, error) {
	if c.rt != nil {
		return c.rt, nil
	}
	logger := c.cfg.NewLogger(os.Stderr)
	rt, err := c.cfg.BuildService(ctx, logger)
	if err != nil {
		return nil, err
	}
	c.rt = rt
	return rt, nil
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseData decodes a --data flag value into a JSON object
func parseData(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("--data must be a JSON object: %w", err)
	}
	return data, nil
}

// exitError is returned when we want to exit with a specific code
// but don't want cobra to print an error message.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return ""
}

func main() {
	if err := execute(os.Stdout, os.Args[1:]); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
