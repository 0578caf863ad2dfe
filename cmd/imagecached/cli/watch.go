package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/pixelvault/imagecache"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show a live dashboard of cache size and entry count",
	Long: `Poll the cache directory once a second and render a small live
dashboard: entry count and total bytes on disk, scaled against the
configured maximum size. Press q to quit.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	cacheCmd.AddCommand(watchCmd)
}

func runWatch(_ *cobra.Command, _ []string) error {
	cache, err := openIdleCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	maxSize := viper.GetInt("cache-max-size")
	if maxSize <= 0 {
		maxSize = 3
	}

	// A dumb pipe or redirected stdout can't render the bubbletea dashboard;
	// fall back to a single plain-text snapshot instead of a raw-mode TUI.
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return printStatsOnce(cache, maxSize)
	}

	model := watchModel{
		cache:   cache,
		bar:     progress.New(progress.WithDefaultGradient()),
		maxSize: maxSize,
	}

	p := tea.NewProgram(model)
	_, err = p.Run()
	return err
}

func printStatsOnce(cache *imagecache.Cache, maxSize int) error {
	stats, err := cache.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("entries: %d / %d\nsize:    %s\n",
		stats.EntryCount, maxSize, humanize.Bytes(uint64(stats.TotalBytes)))
	return nil
}

type tickMsg time.Time

type watchModel struct {
	cache   *imagecache.Cache
	bar     progress.Model
	maxSize int
	stats   imagecache.Stats
	err     error
}

func (m watchModel) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tickMsg:
		stats, err := m.cache.Stats()
		m.stats = stats
		m.err = err
		return m, tick()
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("error reading cache stats: %v\n", m.err)
	}

	fraction := 0.0
	if m.maxSize > 0 {
		fraction = float64(m.stats.EntryCount) / float64(m.maxSize)
	}

	return fmt.Sprintf(
		"imagecache watch — %s\n\n%s\nentries: %d / %d\nsize:    %s\n\npress q to quit\n",
		m.stats.Path,
		m.bar.ViewAs(fraction),
		m.stats.EntryCount, m.maxSize,
		humanize.Bytes(uint64(m.stats.TotalBytes)),
	)
}
