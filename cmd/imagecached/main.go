// Command imagecached provides a CLI front end for the image cache
// library: loading URLs, and inspecting or pruning the cache directory.
package main

import (
	"os"

	"github.com/pixelvault/imagecache/cmd/imagecached/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
