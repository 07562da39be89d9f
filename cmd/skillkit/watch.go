package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jingkaihe/skillkit/pkg/fsutil"
	"github.com/jingkaihe/skillkit/pkg/logger"
	"github.com/jingkaihe/skillkit/pkg/presenter"
	"github.com/jingkaihe/skillkit/pkg/scan"
	"github.com/jingkaihe/skillkit/pkg/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// WatchConfig holds configuration for the watch command
type WatchConfig struct {
	DebounceTime    int
	RefreshInterval int
}

// NewWatchConfig creates a new WatchConfig with default values
func NewWatchConfig() *WatchConfig {
	return &WatchConfig{
		DebounceTime:    500,
		RefreshInterval: 30,
	}
}

// Validate validates the WatchConfig and returns an error if invalid
func (c *WatchConfig) Validate() error {
	if c.DebounceTime < 0 {
		return errors.Errorf("debounce time cannot be negative: %d", c.DebounceTime)
	}
	if c.RefreshInterval < 0 {
		return errors.Errorf("refresh interval cannot be negative: %d", c.RefreshInterval)
	}
	return nil
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-scan whenever skill directories change",
	Long: `Watch the canonical store and the skill directories of every installed agent
app and print a fresh scan summary after each burst of changes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		config := getWatchConfigFromFlags(cmd)
		if err := config.Validate(); err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			presenter.Warning("Stopping watch")
			cancel()
		}()

		return runWatchMode(ctx, a, config)
	},
}

func init() {
	defaults := NewWatchConfig()
	watchCmd.Flags().IntP("debounce", "d", defaults.DebounceTime, "Debounce time in milliseconds for change events")
	watchCmd.Flags().Int("refresh", defaults.RefreshInterval, "Seconds between checks for newly installed agent apps (0 disables)")
}

func getWatchConfigFromFlags(cmd *cobra.Command) *WatchConfig {
	config := NewWatchConfig()
	if debounceTime, err := cmd.Flags().GetInt("debounce"); err == nil {
		config.DebounceTime = debounceTime
	}
	if refresh, err := cmd.Flags().GetInt("refresh"); err == nil {
		config.RefreshInterval = refresh
	}
	return config
}

// watchDirs returns the canonical roots and installed agent directories that
// exist, plus every skill folder directly inside them.
func watchDirs(a *app) ([]string, error) {
	scopes := []store.Scope{store.ScopeGlobal}
	if a.store.ProjectRoot != "" {
		scopes = append(scopes, store.ScopeProject)
	}

	installed, err := a.agents.Installed()
	if err != nil {
		return nil, err
	}

	var roots []string
	for _, scope := range scopes {
		if root, err := a.store.Root(scope); err == nil {
			roots = append(roots, root)
		}
		for _, app := range installed {
			if dir, err := a.agents.SkillsDir(app, scope, a.store.ProjectRoot); err == nil {
				roots = append(roots, dir)
			}
		}
	}

	seen := map[string]bool{}
	var dirs []string
	add := func(dir string) {
		key := fsutil.Canonicalize(dir)
		if seen[key] || !fsutil.IsDir(dir) {
			return
		}
		seen[key] = true
		dirs = append(dirs, dir)
	}
	for _, root := range roots {
		add(root)
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				add(filepath.Join(root, entry.Name()))
			}
		}
	}
	return dirs, nil
}

// watchSet remembers which directories were handed to the watcher.
type watchSet struct {
	watcher *fsnotify.Watcher
	added   map[string]bool
}

func newWatchSet(watcher *fsnotify.Watcher) *watchSet {
	return &watchSet{watcher: watcher, added: map[string]bool{}}
}

func (w *watchSet) add(ctx context.Context, dir string) bool {
	key := fsutil.Canonicalize(dir)
	if w.added[key] {
		return false
	}
	log := logger.G(ctx).WithField("directory", dir)
	if err := w.watcher.Add(dir); err != nil {
		log.WithError(err).Warn("failed to watch directory")
		return false
	}
	w.added[key] = true
	log.Debug("watching directory")
	return true
}

// sync re-detects installed agent apps and watches every directory that
// appeared since the last call. It returns the number of new directories.
func (w *watchSet) sync(ctx context.Context, a *app) (int, error) {
	if _, err := a.agents.Refresh(); err != nil {
		return 0, errors.Wrap(err, "failed to refresh agent apps")
	}
	dirs, err := watchDirs(a)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, dir := range dirs {
		if w.add(ctx, dir) {
			added++
		}
	}
	return added, nil
}

func runWatchMode(ctx context.Context, a *app, config *WatchConfig) error {
	log := logger.G(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	watched := newWatchSet(watcher)
	if _, err := watched.sync(ctx, a); err != nil {
		return err
	}

	scanner, err := a.scanner()
	if err != nil {
		return err
	}
	rescan := func() {
		if _, err := watched.sync(ctx, a); err != nil {
			log.WithError(err).Warn("failed to refresh watched directories")
		}
		result, err := scanner.Scan(ctx)
		if err != nil {
			presenter.Error(err, "Scan failed")
			return
		}
		printScanSummary(result)
	}

	rescan()
	presenter.Info(fmt.Sprintf("Watching %d directories... Press Ctrl+C to stop", len(watched.added)))

	delay := time.Duration(config.DebounceTime) * time.Millisecond
	timer := time.NewTimer(delay)
	timer.Stop()

	var refresh <-chan time.Time
	if config.RefreshInterval > 0 {
		ticker := time.NewTicker(time.Duration(config.RefreshInterval) * time.Second)
		defer ticker.Stop()
		refresh = ticker.C
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			log.WithField("file", event.Name).WithField("operation", event.Op.String()).Debug("change detected")
			if event.Op&fsnotify.Create != 0 && fsutil.IsDir(event.Name) {
				watched.add(ctx, event.Name)
			}
			timer.Reset(delay)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Error("error watching skill directories")
		case <-refresh:
			added, err := watched.sync(ctx, a)
			if err != nil {
				log.WithError(err).Warn("failed to refresh watched directories")
				continue
			}
			if added > 0 {
				log.WithField("directories", added).Info("new agent directories detected")
				timer.Reset(delay)
			}
		case <-timer.C:
			presenter.Section(fmt.Sprintf("Changes detected at %s", time.Now().Format(time.Kitchen)))
			rescan()
		case <-ctx.Done():
			return nil
		}
	}
}

func printScanSummary(result *scan.Result) {
	counts := map[scan.Status]int{}
	for _, s := range result.All() {
		counts[s.Status()]++
	}
	presenter.Info(fmt.Sprintf("managed: %d  unmanaged: %d  mixed: %d",
		counts[scan.StatusManaged], counts[scan.StatusUnmanaged], counts[scan.StatusMixed]))

	for _, s := range result.Unmanaged {
		if s.NameConflict() || s.ConflictWithManaged() {
			presenter.Warning(fmt.Sprintf("%s (%s) at %s: %s", s.Name, s.Status(), s.Path, skillFlags(s)))
		}
	}
}
