package main

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendant/assetsync/pkg/assetsync/config"
	"github.com/tendant/assetsync/pkg/assetsync/scan"
	"gopkg.in/yaml.v3"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the metadata table and its indexes",
		Long: `Create the metadata table and its indexes in the configured SQL index.
Migrations are idempotent. The memory index needs no migration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.cfg.Index.AutoMigrate = false
			rt, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}
			if err := rt.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Migrated %s index (table %s)\n", c.cfg.Index.Type, c.cfg.Index.Table)
			return nil
		},
	}
}

func (c *cli) reindexCmd() *cobra.Command {
	var (
		dryRun    bool
		all       bool
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "reindex [prefix]",
		Short: "Create metadata records for objects that have none",
		Long: `Walk the blob store and resync the metadata record of every object
without one. With --all, existing records are rebuilt too and keep
their additional data.

Examples:
  assetctl reindex --dry-run
  assetctl reindex imported/ --batch-size 500`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}
			opts := scan.Options{
				Processor: &scan.ResyncProcessor{Service: rt.Service, All: all},
				BatchSize: batchSize,
				DryRun:    dryRun,
			}
			if len(args) > 0 {
				opts.Prefix = args[0]
			}

			result, err := scan.New(rt.Service, c.cfg.NewLogger(os.Stderr)).Scan(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := c.printJSON(result); err != nil {
				return err
			}
			if result.TotalFailed > 0 {
				return &exitError{code: 2}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be indexed without writing")
	cmd.Flags().BoolVar(&all, "all", false, "also rebuild existing records")
	cmd.Flags().IntVar(&batchSize, "batch-size", 100, "objects listed per page")
	return cmd
}

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(c.out)
			enc.SetIndent(2)
			if err := enc.Encode(newConfigView(c.cfg)); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	return cmd
}

// configView is the printable form of config.ServerConfig
type configView struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
	Storage     struct {
		Type            string `yaml:"type"`
		BaseDir         string `yaml:"base_dir,omitempty"`
		URLPrefix       string `yaml:"url_prefix,omitempty"`
		Bucket          string `yaml:"bucket,omitempty"`
		Region          string `yaml:"region,omitempty"`
		Endpoint        string `yaml:"endpoint,omitempty"`
		AccessKeyID     string `yaml:"access_key_id,omitempty"`
		SecretAccessKey string `yaml:"secret_access_key,omitempty"`
		UsePathStyle    bool   `yaml:"use_path_style,omitempty"`
	} `yaml:"storage"`
	Index struct {
		Type        string `yaml:"type"`
		DatabaseURL string `yaml:"database_url,omitempty"`
		Path        string `yaml:"path,omitempty"`
		Schema      string `yaml:"schema,omitempty"`
		Table       string `yaml:"table"`
		AutoMigrate bool   `yaml:"auto_migrate"`
	} `yaml:"index"`
	Cache struct {
		RedisURL string `yaml:"redis_url,omitempty"`
		TTL      string `yaml:"ttl,omitempty"`
	} `yaml:"cache"`
	URLs struct {
		Strategy   string `yaml:"strategy"`
		CDNBaseURL string `yaml:"cdn_base_url,omitempty"`
		APIBaseURL string `yaml:"api_base_url,omitempty"`
	} `yaml:"urls"`
}

const redacted = "REDACTED"

func newConfigView(cfg *config.ServerConfig) configView {
	var v configView
	v.Environment = cfg.Environment
	v.LogLevel = cfg.LogLevel

	v.Storage.Type = cfg.Storage.Type
	v.Storage.BaseDir = cfg.Storage.BaseDir
	v.Storage.URLPrefix = cfg.Storage.URLPrefix
	v.Storage.Bucket = cfg.Storage.Bucket
	v.Storage.Endpoint = cfg.Storage.Endpoint
	v.Storage.AccessKeyID = cfg.Storage.AccessKeyID
	v.Storage.UsePathStyle = cfg.Storage.UsePathStyle
	if cfg.Storage.Type == "s3" {
		v.Storage.Region = cfg.Storage.Region
	}
	if cfg.Storage.SecretAccessKey != "" {
		v.Storage.SecretAccessKey = redacted
	}

	v.Index.Type = cfg.Index.Type
	v.Index.DatabaseURL = redactURL(cfg.Index.DatabaseURL)
	v.Index.Path = cfg.Index.Path
	v.Index.Schema = cfg.Index.Schema
	v.Index.Table = cfg.Index.Table
	v.Index.AutoMigrate = cfg.Index.AutoMigrate

	if cfg.Cache.RedisURL != "" {
		v.Cache.RedisURL = redactURL(cfg.Cache.RedisURL)
		v.Cache.TTL = cfg.Cache.TTL.String()
	}

	v.URLs.Strategy = cfg.URLs.Strategy
	v.URLs.CDNBaseURL = cfg.URLs.CDNBaseURL
	v.URLs.APIBaseURL = cfg.URLs.APIBaseURL
	return v
}

// redactURL hides the password of a connection URL
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	return u.Redacted()
}
