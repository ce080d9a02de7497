package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	lshttp "github.com/syedhassaanahmed/log-storage-service/http"
)

func newUploadCmd(g *globalFlags) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a ZIP archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(args[0])
			}

			res, err := c.Upload(cmd.Context(), name, f, info.Size())
			if err != nil {
				return fmt.Errorf("upload %s: %w", args[0], err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Location)
			return printLinks(out, res.Links)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "archive name (defaults to the file name)")
	return cmd
}

func newLsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ls ARCHIVE",
		Short: "List the files of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			links, err := c.Index(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("list %s: %w", args[0], err)
			}
			return printLinks(cmd.OutOrStdout(), links)
		},
	}
}

func newCatCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cat LINK",
		Short: "Write an inner file to stdout",
		Long:  "LINK is a URL printed by upload or ls, or an ARCHIVE/KEY path.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			f, err := c.Open(cmd.Context(), fileRef(args[0]))
			if err != nil {
				return fmt.Errorf("cat %s: %w", args[0], err)
			}
			defer f.Close()
			_, err = io.Copy(cmd.OutOrStdout(), f)
			return err
		},
	}
}

func newStatCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stat LINK",
		Short: "Show inner file metadata without downloading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			info, err := c.Stat(cmd.Context(), fileRef(args[0]))
			if err != nil {
				return fmt.Errorf("stat %s: %w", args[0], err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "size:          %d\n", info.Size)
			fmt.Fprintf(out, "content-type:  %s\n", info.ContentType)
			fmt.Fprintf(out, "last-modified: %s\n", info.LastModified.Format(time.RFC3339))
			return nil
		},
	}
}

// fileRef turns an ARCHIVE/KEY argument into a server path. URLs and
// absolute paths pass through.
func fileRef(arg string) string {
	if strings.HasPrefix(arg, "/") || strings.Contains(arg, "://") {
		return arg
	}
	return "/logs/" + arg
}

func printLinks(out io.Writer, links []lshttp.Link) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, l := range links {
		fmt.Fprintf(tw, "%d\t%s\n", l.Size, l.URL)
	}
	return tw.Flush()
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the server's storage settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			status, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(status))
			for k := range status {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, k := range keys {
				fmt.Fprintf(tw, "%s:\t%s\n", k, status[k])
			}
			return tw.Flush()
		},
	}
}
