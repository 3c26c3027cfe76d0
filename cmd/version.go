////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Handles command-line version functionality

package cmd

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/cryptostore/cryptostore"
	"gitlab.com/xx_network/primitives/utils"
)

// Change this value to set the version for this build
const currentVersion = "1.2.0"

const defaultTimeout = 30 * time.Second

func Version() string {
	out := fmt.Sprintf("Elixxir Cryptostore v%s -- %s\n\n",
		cryptostore.SEMVER, cryptostore.GITVERSION)
	out += fmt.Sprintf("Dependencies:\n\n%s\n", cryptostore.DEPENDENCIES)
	return out
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(generateCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and dependency information for the binary",
	Long:  `Print the version and dependency information for the binary`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(Version())
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generates version and dependency information for the binary",
	Long:  `Generates version and dependency information for the binary`,
	Run: func(cmd *cobra.Command, args []string) {
		utils.GenerateVersionFile(currentVersion)
		if err := moveVersionFile(generatedVersionFile,
			versionVarsPath); err != nil {
			jww.FATAL.Panicf("Failed to place %s: %+v", versionVarsPath, err)
		}
		jww.INFO.Printf("Wrote %s", versionVarsPath)
	},
}

const (
	// generatedVersionFile is where utils.GenerateVersionFile writes, in the
	// working directory and with package cmd.
	generatedVersionFile = "version_vars.go"

	// versionVarsPath is the file read by Version; run generate from the
	// repository root.
	versionVarsPath = "cryptostore/version_vars.go"
)

// moveVersionFile rewrites the generated file into the cryptostore package.
func moveVersionFile(from, to string) error {
	data, err := utils.ReadFile(from)
	if err != nil {
		return errors.WithMessagef(err, "failed to read %s", from)
	}

	data = bytes.Replace(data, []byte("package cmd\n"),
		[]byte("package cryptostore\n"), 1)
	if err = utils.WriteFileDef(to, data); err != nil {
		return errors.WithMessagef(err, "failed to write %s", to)
	}
	return os.Remove(from)
}
