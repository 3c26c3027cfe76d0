////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

// This is a comprehensive list of CLI flag name constants. Organized by
// subcommand, with root level CLI flags at the top of the list. Pulling flags
// using Viper should use the constants defined here.
const (
	//////////////// Root flags ///////////////////////////////////////////////

	// Log flags
	logLevelFlag = "logLevel"
	logFlag      = "log"

	// Storage flags
	sessionFlag  = "session"
	passwordFlag = "password"
	nameFlag     = "name"
	configFlag   = "config"

	// Misc
	timeoutFlag = "timeout"

	///////////////// Info subcommand flags ///////////////////////////////////
	recordsFlag = "records"

	///////////////// Tracked subcommand flags ////////////////////////////////
	dirtyFlag = "dirty"

	///////////////// Export/import subcommand flags //////////////////////////
	exportOutFlag = "out"
	importInFlag  = "in"
)
