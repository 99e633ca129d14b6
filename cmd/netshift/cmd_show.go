package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netshift-network/netshift/pkg/store"
)

var showCmd = &cobra.Command{
	Use:   "show [run-name]",
	Short: "List stored runs, or show one run's record",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if app.redisAddr == "" {
			return fmt.Errorf("show requires --redis")
		}
		archive := store.NewArchive(app.redisAddr, app.redisDB)
		defer archive.Close()
		ctx := context.Background()

		if len(args) == 0 {
			names, err := archive.List(ctx)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		}

		rec, err := archive.Load(ctx, args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}
