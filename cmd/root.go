////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package cmd initializes the CLI and config parsers as well as the logger.
package cmd

import (
	"context"
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/cryptostore/cryptostore"
)

// Execute adds all child commands to the root command and sets flags
// appropriately.  This is called by main.main(). It only needs to
// happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cryptostore",
	Short: "Inspects and maintains end-to-end encryption state stores",
	Args:  cobra.NoArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLog(viper.GetUint(logLevelFlag), viper.GetString(logFlag))
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// openStore opens the store selected by the storage flags.
func openStore() *cryptostore.Store {
	params := cryptostore.GetDefaultParams()
	params.StorageDir = viper.GetString(sessionFlag)
	params.Password = viper.GetString(passwordFlag)
	if name := viper.GetString(nameFlag); name != "" {
		params.Name = name
	}

	if params.StorageDir == "" {
		jww.FATAL.Panicf("A storage directory must be set with -%s",
			"s")
	}

	store, err := cryptostore.Open(params)
	if err != nil {
		jww.FATAL.Panicf("Failed to open crypto store %s in %s: %+v",
			params.Name, params.StorageDir, err)
	}
	return store
}

// commandContext returns the context bounding store operations of a
// command.
func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(),
		viper.GetDuration(timeoutFlag))
}

func initLog(threshold uint, logPath string) {
	if logPath != "-" && logPath != "" {
		// Disable stdout output
		jww.SetStdoutOutput(ioutil.Discard)
		// Use log file
		logOutput, err := os.OpenFile(logPath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			panic(err.Error())
		}
		jww.SetLogOutput(logOutput)
	}

	if threshold > 1 {
		jww.INFO.Printf("log level set to: TRACE")
		jww.SetStdoutThreshold(jww.LevelTrace)
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else if threshold == 1 {
		jww.INFO.Printf("log level set to: DEBUG")
		jww.SetStdoutThreshold(jww.LevelDebug)
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		jww.INFO.Printf("log level set to: INFO")
		jww.SetStdoutThreshold(jww.LevelInfo)
		jww.SetLogThreshold(jww.LevelInfo)
	}

	jww.INFO.Print(Version())
}

// init is the initialization function for Cobra which defines commands
// and flags.
func init() {
	// NOTE: The point of init() is to be declarative.
	// There is one init in each sub command. Do not put variable declarations
	// here, and ensure all the Flags are of the *P variety, unless there's a
	// very good reason not to have them as local params to sub command."
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().UintP(logLevelFlag, "v", 0,
		"Verbose mode for debugging")
	viper.BindPFlag(logLevelFlag, rootCmd.PersistentFlags().Lookup(
		logLevelFlag))

	rootCmd.PersistentFlags().StringP(logFlag, "l", "-",
		"Path to the log output path (- is stdout)")
	viper.BindPFlag(logFlag, rootCmd.PersistentFlags().Lookup(logFlag))

	rootCmd.PersistentFlags().StringP(sessionFlag, "s", "",
		"Storage directory of the crypto store")
	viper.BindPFlag(sessionFlag, rootCmd.PersistentFlags().Lookup(
		sessionFlag))

	rootCmd.PersistentFlags().StringP(passwordFlag, "p", "",
		"Password to the crypto store")
	viper.BindPFlag(passwordFlag, rootCmd.PersistentFlags().Lookup(
		passwordFlag))

	rootCmd.PersistentFlags().StringP(nameFlag, "n", "",
		"Name of the database inside the storage directory")
	viper.BindPFlag(nameFlag, rootCmd.PersistentFlags().Lookup(nameFlag))

	rootCmd.PersistentFlags().Duration(timeoutFlag, defaultTimeout,
		"Longest time a command waits on the store")
	viper.BindPFlag(timeoutFlag, rootCmd.PersistentFlags().Lookup(
		timeoutFlag))

	rootCmd.PersistentFlags().StringP(configFlag, "c", "",
		"Optional config file; flags override its values")
	viper.BindPFlag(configFlag, rootCmd.PersistentFlags().Lookup(configFlag))
}

// initConfig reads in the config file, if one is set, and the environment.
func initConfig() {
	viper.SetEnvPrefix("CRYPTOSTORE")
	viper.AutomaticEnv()

	configFile := viper.GetString(configFlag)
	if configFile == "" {
		return
	}

	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		jww.FATAL.Panicf("%+v", errors.WithMessagef(err,
			"failed to read config file %s", configFile))
	}
}
