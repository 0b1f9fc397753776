package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/tendant/assetsync/pkg/assetsync"
)

func (c *cli) searchCmd() *cobra.Command {
	var (
		filter    string
		prefix    string
		limit     int
		offset    int
		orderBy   string
		ascending bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Query the metadata index",
		Long: `Query metadata records by filter or by key prefix. The blob store is
not consulted.

A filter is a JSON object mapping fields to either a literal (equality)
or an object with one operator: eq, gt, lt, gte, lte, in, contains, like.
Fields under additional_data are addressed as additional_data.<name>.

Examples:
  assetctl search --filter '{"owner_id":"acme"}'
  assetctl search --filter '{"size":{"gte":1048576}}' --order-by size
  assetctl search --prefix acme/brand/ --limit 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prefix != "" && filter != "" {
				return errors.New("--prefix cannot be combined with --filter")
			}
			opts := assetsync.QueryOptions{
				Limit:     limit,
				Offset:    offset,
				OrderBy:   orderBy,
				Ascending: ascending,
			}

			rt, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}

			var records []assetsync.Record
			if prefix != "" {
				records, err = rt.Service.SearchByPrefix(cmd.Context(), prefix, opts)
			} else {
				var raw map[string]any
				if filter != "" {
					if err := json.Unmarshal([]byte(filter), &raw); err != nil {
						return fmt.Errorf("--filter must be a JSON object: %w", err)
					}
				}
				var f assetsync.Filter
				f, err = assetsync.ParseFilter(raw)
				if err != nil {
					return err
				}
				records, err = rt.Service.Search(cmd.Context(), f, opts)
			}
			if err != nil {
				return err
			}
			if records == nil {
				records = []assetsync.Record{}
			}
			return c.printJSON(records)
		},
	}

	cmd.Flags().StringVarP(&filter, "filter", "f", "", "filter as a JSON object")
	cmd.Flags().StringVar(&prefix, "prefix", "", "match keys under this prefix")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "max records (default: 100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")
	cmd.Flags().StringVar(&orderBy, "order-by", "", "order column (default: created_at)")
	cmd.Flags().BoolVar(&ascending, "asc", false, "sort ascending")
	return cmd
}

func (c *cli) deleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <key> [key...]",
		Short: "Delete objects and their metadata records",
		Long: `Delete one or more objects. Deleting a missing object succeeds.

Examples:
  assetctl delete acme/brand/old-logo.png
  assetctl delete --yes tmp/a.txt tmp/b.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				prompt := promptui.Prompt{
					Label:     fmt.Sprintf("Delete %d object(s)", len(args)),
					IsConfirm: true,
				}
				if _, err := prompt.Run(); err != nil {
					return handlePromptError(err)
				}
			}

			rt, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}

			results := make([]*assetsync.DeleteResult, 0, len(args))
			failed := false
			for _, key := range args {
				result, err := rt.Service.Delete(cmd.Context(), key)
				if err != nil {
					return fmt.Errorf("delete %s: %w", key, err)
				}
				results = append(results, result)
				if result.MetadataSync.State == assetsync.SyncStateFailed {
					failed = true
				}
			}
			if err := c.printJSON(results); err != nil {
				return err
			}
			if failed {
				return &exitError{code: 2}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func (c *cli) updateCmd() *cobra.Command {
	var (
		contentType string
		data        string
		merge       bool
	)

	cmd := &cobra.Command{
		Use:   "update <key>",
		Short: "Change the content type or additional data of a record",
		Long: `Update the metadata record of an object. --data replaces the additional
data unless --merge is set.

Examples:
  assetctl update acme/brand/logo.png --data '{"approved":true}' --merge
  assetctl update acme/reports/q1 --content-type text/csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, err := parseData(data)
			if err != nil {
				return err
			}
			update := assetsync.MetadataUpdate{AdditionalData: extra, Merge: merge}
			if cmd.Flags().Changed("content-type") {
				update.ContentType = &contentType
			}

			rt, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := rt.Service.UpdateMetadata(cmd.Context(), args[0], update)
			if err != nil {
				return err
			}
			return c.printJSON(rec)
		},
	}

	cmd.Flags().StringVar(&contentType, "content-type", "", "new content type")
	cmd.Flags().StringVar(&data, "data", "", "additional data as a JSON object")
	cmd.Flags().BoolVar(&merge, "merge", false, "merge --data into the existing additional data")
	return cmd
}

func (c *cli) resyncCmd() *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "resync <key>",
		Short: "Rebuild the metadata record of an object from the blob store",
		Long: `Rebuild the record of an object from its blob attributes. Use this to
repair a record after a failed metadata sync or to index an object
written outside assetsync.

Examples:
  assetctl resync acme/brand/logo.png
  assetctl resync imported/file.bin --data '{"source":"import"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, err := parseData(data)
			if err != nil {
				return err
			}
			rt, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := rt.Service.ResyncMetadata(cmd.Context(), args[0], extra)
			if err != nil {
				return err
			}
			return c.printJSON(rec)
		},
	}

	cmd.Flags().StringVar(&data, "data", "", "additional data as a JSON object (default: keep the existing data)")
	return cmd
}

// handlePromptError handles promptui errors.
func handlePromptError(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) {
		return errors.New("cancelled")
	}
	return err
}
