package main

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tendant/assetsync/pkg/assetsync"
	"github.com/tendant/assetsync/pkg/assetsync/objectkey"
)

func (c *cli) uploadCmd() *cobra.Command {
	var (
		key         string
		ownerID     string
		folder      string
		contentType string
		data        string
	)

	cmd := &cobra.Command{
		Use:   "upload <local-file>",
		Short: "Upload a file and record its metadata",
		Long: `Upload a local file to the blob store and insert its metadata record.

Without --key the key is generated as <owner>/<folder>/<millis>-<name>.

Examples:
  assetctl upload ./logo.png --key acme/brand/logo.png
  assetctl upload ./report.pdf --owner acme --folder reports --data '{"quarter":"Q1"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, err := parseData(data)
			if err != nil {
				return err
			}

			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			if key == "" {
				key, err = objectkey.NewTimestampGenerator().GenerateKey(objectkey.KeyMetadata{
					FileName: filepath.Base(path),
					OwnerID:  ownerID,
					Folder:   folder,
				})
				if err != nil {
					return err
				}
			}
			if contentType == "" {
				contentType = mime.TypeByExtension(filepath.Ext(path))
			}

			rt, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}
			result, err := rt.Service.Upload(cmd.Context(), assetsync.UploadRequest{
				Key:            key,
				Body:           f,
				ContentType:    contentType,
				AdditionalData: extra,
			})
			if err != nil {
				return err
			}
			if err := c.printJSON(result); err != nil {
				return err
			}
			return syncExit(result.MetadataSync)
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "object key (default: generated)")
	cmd.Flags().StringVar(&ownerID, "owner", "", "owner used to generate the key")
	cmd.Flags().StringVar(&folder, "folder", "", "folder used to generate the key")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type (default: from the file extension)")
	cmd.Flags().StringVar(&data, "data", "", "additional data as a JSON object")
	return cmd
}

func (c *cli) downloadCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <key>",
		Short: "Download an object",
		Long: `Download an object to a file, or to stdout when --output is not set.

Examples:
  assetctl download acme/brand/logo.png -o logo.png
  assetctl download acme/reports/q1.csv | head`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}
			obj, err := rt.Service.Download(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer obj.Body.Close()

			if output == "" {
				_, err = io.Copy(c.out, obj.Body)
				return err
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, obj.Body); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "local file to write")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	var (
		limit int
		token string
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "list [prefix]",
		Short: "List objects with their metadata records",
		Long: `List objects in the blob store, each paired with its metadata record.
Objects without a record are listed with "metadata": null.

Examples:
  assetctl list
  assetctl list acme/brand/ --limit 10
  assetctl list acme/ --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := assetsync.ListRequest{MaxItems: limit, ContinuationToken: token}
			if len(args) > 0 {
				req.Prefix = args[0]
			}

			rt, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}
			if !all {
				result, err := rt.Service.List(cmd.Context(), req)
				if err != nil {
					return err
				}
				return c.printJSON(result)
			}

			merged := &assetsync.ListResult{Items: []assetsync.EnrichedObject{}}
			for {
				page, err := rt.Service.List(cmd.Context(), req)
				if err != nil {
					return err
				}
				merged.Items = append(merged.Items, page.Items...)
				if !page.Truncated || page.NextContinuationToken == "" {
					break
				}
				req.ContinuationToken = page.NextContinuationToken
			}
			return c.printJSON(merged)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "max results per page (default: store default)")
	cmd.Flags().StringVar(&token, "token", "", "continuation token from a previous page")
	cmd.Flags().BoolVar(&all, "all", false, "fetch all pages")
	return cmd
}

func (c *cli) headCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "head <key>",
		Short: "Show blob attributes and the metadata record of an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}
			details, err := rt.Service.GetObjectMetadata(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printJSON(details)
		},
	}
}

func (c *cli) urlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url <key>",
		Short: "Print a download URL for an object",
		Long: `Print a download URL for an object. S3 stores return a presigned URL
valid for the configured presign duration; other stores return the
public URL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := rt.Store.Head(cmd.Context(), args[0]); err != nil {
				return err
			}
			link, err := rt.URLs.DownloadURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, link)
			return nil
		},
	}
}

func (c *cli) copyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <source-key> <dest-key>",
		Short: "Copy an object and its metadata record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.runtime(cmd.Context())
			if err != nil {
				return err
			}
			result, err := rt.Service.Copy(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if err := c.printJSON(result); err != nil {
				return err
			}
			return syncExit(result.MetadataSync)
		},
	}
}

// syncExit turns a failed metadata sync into exit code 2. The blob
// operation itself succeeded and its result has been printed.
func syncExit(sync assetsync.MetadataSync) error {
	if sync.State != assetsync.SyncStateFailed {
		return nil
	}
	fmt.Fprintln(os.Stderr, "metadata sync failed:", sync.Err)
	return &exitError{code: 2}
}
