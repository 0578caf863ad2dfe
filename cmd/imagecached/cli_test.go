package main

import (
	"os"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/pixelvault/imagecache/cmd/imagecached/cli"
)

// TestMain lets testscript invoke this binary's own CLI logic in-process
// as the "imagecached" subcommand, rather than spawning a built binary.
func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"imagecached": func() int {
			if err := cli.Execute(); err != nil {
				return 1
			}
			return 0
		},
	}))
}

func TestCLIScripts(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata/script",
	})
}
