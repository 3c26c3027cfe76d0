////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/xx_network/primitives/utils"
)

// The generated file lands in the cryptostore package.
func TestMoveVersionFile(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, generatedVersionFile)
	to := filepath.Join(dir, "cryptostore", "version_vars.go")

	generated := "// Code generated by go generate; DO NOT EDIT.\n" +
		"package cmd\n\nconst SEMVER = \"1.2.0\"\n"
	require.NoError(t, utils.WriteFileDef(from, []byte(generated)))

	require.NoError(t, moveVersionFile(from, to))

	require.False(t, utils.Exists(from))
	data, err := utils.ReadFile(to)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "package cryptostore\n"))
	require.False(t, strings.Contains(string(data), "package cmd"))
}

func TestMoveVersionFile_Missing(t *testing.T) {
	dir := t.TempDir()
	err := moveVersionFile(filepath.Join(dir, "absent.go"),
		filepath.Join(dir, "out.go"))
	require.Error(t, err)
}
