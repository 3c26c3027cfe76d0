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
)

// trackedCmd lists the tracked users.
var trackedCmd = &cobra.Command{
	Use:   "tracked",
	Short: "List tracked users; users marked * need a key query",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore()
		defer store.Close()

		dirty := make(map[string]bool)
		for _, user := range store.UsersForKeyQuery() {
			dirty[user] = true
		}

		for _, user := range store.TrackedUsers() {
			mark := " "
			if dirty[user] {
				mark = "*"
			}
			fmt.Printf("%s %s\n", mark, user)
		}
	},
}

// trackCmd tracks users or changes their dirty flag.
var trackCmd = &cobra.Command{
	Use:   "track USER...",
	Short: "Track users, optionally marking their device lists outdated",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore()
		defer store.Close()

		ctx, cancel := commandContext()
		defer cancel()

		dirty := viper.GetBool(dirtyFlag)
		for _, user := range args {
			changed, err := store.UpdateTrackedUser(ctx, user, dirty)
			if err != nil {
				jww.FATAL.Panicf("Failed to track %s: %+v", user, err)
			}
			if changed {
				fmt.Printf("%s: tracked (dirty=%t)\n", user, dirty)
			} else {
				fmt.Printf("%s: unchanged\n", user)
			}
		}
	},
}

func init() {
	trackCmd.Flags().Bool(dirtyFlag, true,
		"Mark the users' device lists as outdated")
	viper.BindPFlag(dirtyFlag, trackCmd.Flags().Lookup(dirtyFlag))

	trackedCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(trackedCmd)
}
