package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pilothub/api/internal/projects"
	"pilothub/api/internal/snapshot"
)

func newProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"p"},
		Short:   "Inspect stored projects",
	}
	cmd.AddCommand(newProjectsListCmd())
	cmd.AddCommand(newProjectsShowCmd())
	cmd.AddCommand(newProjectsDeleteCmd())
	return cmd
}

func newProjectsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects, most recently saved first",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()
			entries, err := projects.New(rt.store, rt.logger).List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSAVED")
			for _, entry := range entries {
				fmt.Fprintf(tw, "%s\t%s\n", entry.Name, entry.Timestamp)
			}
			return tw.Flush()
		},
	}
}

func newProjectsShowCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "show <name>",
		Short: "Print a project's revision ledger as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()
			opened, err := projects.New(rt.store, rt.logger).Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if latest, _ := cmd.Flags().GetBool("latest"); latest {
				rev, ok := opened.Data.Latest()
				if ok {
					fmt.Fprintln(cmd.OutOrStdout(), rev.Content)
				}
				return nil
			}
			return printJSON(cmd, opened)
		},
	}
	c.Flags().Bool("latest", false, "print only the latest document")
	return c
}

func newProjectsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()
			result, err := projects.New(rt.store, rt.logger).Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Message)
			return nil
		},
	}
}

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect the crash-recovery snapshot",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the pending snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()
			snap, ok, err := snapshot.New(rt.store).Peek(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No snapshot.")
				return nil
			}
			return printJSON(cmd, snap)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Discard the pending snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()
			return snapshot.New(rt.store).Clear(cmd.Context())
		},
	})
	return cmd
}

func printJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
