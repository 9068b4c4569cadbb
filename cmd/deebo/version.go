package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	deebo "github.com/snagasuri/deebo-prototype/internal/server"
	"github.com/snagasuri/deebo-prototype/internal/updater"
)

func newVersionCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "deebo %s\n", deebo.Version); err != nil {
				return err
			}
			if !check {
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			res, err := updater.NewChecker().Check(ctx, deebo.Version)
			if err != nil {
				return err
			}
			if notice := res.Notice(); notice != "" {
				_, err = fmt.Fprintln(out, notice)
				return err
			}
			_, err = fmt.Fprintln(out, "up to date")
			return err
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "check GitHub for a newer release")
	return cmd
}
