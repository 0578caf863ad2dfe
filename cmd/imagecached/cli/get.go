package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pixelvault/imagecache"
)

// revalidationGrace bounds how long `get` waits for a second (revalidation)
// callback after the first one arrives, since a cold miss never produces
// a second callback and the CLI has no way to know in advance which case
// it is in.
const revalidationGrace = 5 * time.Second

var getCmd = &cobra.Command{
	Use:   "get <url>",
	Short: "Load a URL through the cache and print the delivered byte counts",
	Long: `Load a URL through the cache.

On a warm cache this prints two lines: the disk-hit delivery followed by
the revalidation outcome. On a cold cache it prints one line once the
network transfer completes.`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(_ *cobra.Command, args []string) error {
	url := args[0]

	results := make(chan imagecache.Result, 2)
	cache, err := newCache(func(res imagecache.Result) {
		results <- res
	})
	if err != nil {
		return err
	}
	defer cache.Close()

	cache.Load(url)

	ctx, cancel := signalContext()
	defer cancel()

	select {
	case res := <-results:
		fmt.Printf("%s: %d bytes\n", res.URL, len(res.Bytes))
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case res := <-results:
		fmt.Printf("%s: %d bytes (revalidated)\n", res.URL, len(res.Bytes))
	case <-time.After(revalidationGrace):
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}
