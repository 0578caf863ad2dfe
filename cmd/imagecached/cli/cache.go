package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pixelvault/imagecache"
)

var (
	pruneMaxSize string
	pruneMaxAge  string
	clearConfirm bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or prune the blob cache",
	Long: `Inspect or prune the local blob cache.

The cache directory can be set with --dir on the root command, or left
to the default XDG location.`,
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show cache statistics",
	Args:  cobra.NoArgs,
	RunE:  runCacheInfo,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached blobs",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove excess or stale cache entries",
	Long: `Prune the blob cache based on a size cap and/or an age limit.

Entries beyond --max-size are removed in directory-iteration order; entries
older than --max-age (by access time) are removed regardless of count.
Without --max-size, the configured --cache-max-size cap still applies.

Examples:
  imagecached cache prune --max-size 100
  imagecached cache prune --max-age 24h
  imagecached cache prune --max-size 50 --max-age 168h`,
	Args: cobra.NoArgs,
	RunE: runCachePrune,
}

func init() {
	cachePruneCmd.Flags().StringVar(&pruneMaxSize, "max-size", "", "Maximum entries to keep")
	cachePruneCmd.Flags().StringVar(&pruneMaxAge, "max-age", "", "Maximum entry age (e.g. 24h, 7d)")
	cacheClearCmd.Flags().BoolVarP(&clearConfirm, "yes", "y", false, "Skip confirmation prompt")

	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}

func openIdleCache() (*imagecache.Cache, error) {
	return newCache(func(imagecache.Result) {})
}

func runCacheInfo(_ *cobra.Command, _ []string) error {
	cache, err := openIdleCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	stats, err := cache.Stats()
	if err != nil {
		return err
	}

	if stats.EntryCount == 0 {
		fmt.Println("Cache is empty")
		return nil
	}

	fmt.Printf("Cache: %s\n", stats.Path)
	fmt.Printf("Size:  %s (%d bytes)\n", humanize.Bytes(uint64(stats.TotalBytes)), stats.TotalBytes)
	fmt.Printf("Entries: %d\n", stats.EntryCount)
	return nil
}

func runCacheClear(_ *cobra.Command, _ []string) error {
	cache, err := openIdleCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	stats, err := cache.Stats()
	if err != nil {
		return err
	}
	if stats.EntryCount == 0 {
		fmt.Println("Cache is already empty")
		return nil
	}

	if !clearConfirm {
		fmt.Printf("This will remove %d entries (%s) from the cache.\n",
			stats.EntryCount, humanize.Bytes(uint64(stats.TotalBytes)))
		fmt.Print("Continue? [y/N] ")
		var response string
		fmt.Scanln(&response) //nolint:errcheck // EOF/empty treated as "no"
		if response != "y" && response != "Y" {
			fmt.Println("Aborted")
			return nil
		}
	}

	result, err := cache.Clear()
	if err != nil {
		return err
	}
	fmt.Printf("Cleared %d entries (%s)\n", result.EntriesRemoved, humanize.Bytes(uint64(stats.TotalBytes)))
	return nil
}

func runCachePrune(_ *cobra.Command, _ []string) error {
	cache, err := openIdleCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	opts := imagecache.PruneOptions{}
	if pruneMaxSize != "" {
		n, err := strconv.Atoi(pruneMaxSize)
		if err != nil {
			return fmt.Errorf("invalid --max-size: %w", err)
		}
		opts.MaxSize = n
	}
	if pruneMaxAge != "" {
		age, err := parseDuration(pruneMaxAge)
		if err != nil {
			return fmt.Errorf("invalid --max-age: %w", err)
		}
		opts.MaxAge = age
	}
	if opts.MaxSize == 0 && opts.MaxAge == 0 {
		return fmt.Errorf("at least one of --max-size or --max-age is required")
	}

	result, err := cache.Prune(opts)
	if err != nil {
		return err
	}

	if result.EntriesRemoved == 0 {
		fmt.Println("No entries to prune")
	} else {
		fmt.Printf("Removed %d entries\n", result.EntriesRemoved)
	}
	fmt.Printf("Remaining: %d entries\n", result.EntriesKept)
	return nil
}

// parseDuration parses a duration string with support for a trailing "d"
// (days), which time.ParseDuration does not accept.
func parseDuration(s string) (time.Duration, error) {
	if s != "" && s[len(s)-1] == 'd' {
		days, err := strconv.Atoi(s[:len(s)-1])
		if err != nil {
			return 0, fmt.Errorf("invalid days: %w", err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
