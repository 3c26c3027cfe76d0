////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/cryptostore/cryptostore"
)

// infoCmd prints a summary of the store's content.
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the schema version and record counts of a crypto store",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore()
		defer store.Close()

		ctx, cancel := commandContext()
		defer cancel()

		stats, err := store.Stats(ctx)
		if err != nil {
			jww.FATAL.Panicf("Failed to read crypto store: %+v", err)
		}

		fmt.Printf("database:             %s\n%s", store.Name(), stats)

		if !viper.GetBool(recordsFlag) {
			return
		}
		versions, err := store.RecordVersions(ctx)
		if err != nil {
			jww.FATAL.Panicf("Failed to read record versions: %+v", err)
		}
		fmt.Println("records:")
		for _, rv := range versions {
			fmt.Printf("  %s\n", rv)
		}
	},
}

// migrateCmd brings a store to the current schema version. Opening a store
// migrates it, so this only reports what happened.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate a crypto store to the current schema version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore()
		defer store.Close()

		writer := store.WriterVersion()
		fmt.Printf("%s is at schema version %d (last written by %s)\n",
			store.Name(), cryptostore.SchemaVersion, &writer)
	},
}

func init() {
	infoCmd.Flags().Bool(recordsFlag, false,
		"Also count every record by kind and envelope version")
	viper.BindPFlag(recordsFlag, infoCmd.Flags().Lookup(recordsFlag))

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(migrateCmd)
}
