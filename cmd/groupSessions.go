////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/cryptostore/olm"
	"gitlab.com/xx_network/primitives/utils"
)

// exportCmd writes every inbound group session to a file.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all inbound group sessions as JSON",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore()
		defer store.Close()

		ctx, cancel := commandContext()
		defer cancel()

		sessions, err := store.GetInboundGroupSessions(ctx)
		if err != nil {
			jww.FATAL.Panicf("Failed to read group sessions: %+v", err)
		}

		data, err := json.MarshalIndent(sessions, "", "  ")
		if err != nil {
			jww.FATAL.Panicf("Failed to marshal group sessions: %+v", err)
		}

		out := viper.GetString(exportOutFlag)
		if out == "-" {
			fmt.Println(string(data))
			return
		}
		if err = utils.WriteFileDef(out, data); err != nil {
			jww.FATAL.Panicf("Failed to write %s: %+v", out, err)
		}
		jww.INFO.Printf("Exported %d group sessions to %s", len(sessions),
			out)
	},
}

// importCmd stores group sessions from an export, marking them imported.
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import inbound group sessions from a JSON export",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		in := viper.GetString(importInFlag)
		data, err := utils.ReadFile(in)
		if err != nil {
			jww.FATAL.Panicf("Failed to read %s: %+v", in, err)
		}

		var sessions []*olm.InboundGroupSession
		if err = json.Unmarshal(data, &sessions); err != nil {
			jww.FATAL.Panicf("Failed to parse %s: %+v", in, err)
		}

		store := openStore()
		defer store.Close()

		ctx, cancel := commandContext()
		defer cancel()

		added := 0
		for _, s := range sessions {
			s.Imported = true
			inserted, err := store.SaveInboundGroupSession(ctx, s)
			if err != nil {
				jww.FATAL.Panicf("Failed to import group session %s: %+v",
					s.SessionID, err)
			}
			if inserted {
				added++
			}
		}

		fmt.Printf("Imported %d group sessions, %d new\n", len(sessions),
			added)
	},
}

func init() {
	exportCmd.Flags().StringP(exportOutFlag, "o", "-",
		"File to write the export to (- is stdout)")
	viper.BindPFlag(exportOutFlag, exportCmd.Flags().Lookup(exportOutFlag))

	importCmd.Flags().StringP(importInFlag, "i", "",
		"Export file to import")
	viper.BindPFlag(importInFlag, importCmd.Flags().Lookup(importInFlag))
	_ = importCmd.MarkFlagRequired(importInFlag)

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
