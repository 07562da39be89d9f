package main

import (
	"github.com/jingkaihe/skillkit/pkg/agents"
	"github.com/jingkaihe/skillkit/pkg/config"
	"github.com/jingkaihe/skillkit/pkg/link"
	"github.com/jingkaihe/skillkit/pkg/lock"
	"github.com/jingkaihe/skillkit/pkg/projects"
	"github.com/jingkaihe/skillkit/pkg/scan"
	"github.com/jingkaihe/skillkit/pkg/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app bundles the components a command works with, built from the effective
// settings and the --project flag.
type app struct {
	settings    *config.Settings
	agents      *agents.Registry
	projects    *projects.Registry
	store       *store.Store
	globalLock  *lock.GlobalStore
	projectLock *lock.ProjectStore
}

func newApp(cmd *cobra.Command) (*app, error) {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	registry, err := agents.NewRegistry(
		agents.WithHomeDir(settings.HomeDir),
		agents.WithConfigDir(settings.ConfigDir),
	)
	if err != nil {
		return nil, err
	}

	a := &app{
		settings:   settings,
		agents:     registry,
		projects:   projects.NewRegistry(settings.ConfigDir, settings.HomeDir),
		globalLock: lock.NewGlobalStore(settings.HomeDir),
	}

	projectRoot := ""
	if ref, err := cmd.Flags().GetString("project"); err == nil && ref != "" {
		projectRoot, err = a.projects.Resolve(ref)
		if err != nil {
			return nil, err
		}
		a.projectLock = lock.NewProjectStore(projectRoot)
	}
	a.store = store.New(settings.HomeDir, projectRoot)
	return a, nil
}

// scope is project when --project was given and global otherwise.
func (a *app) scope() store.Scope {
	if a.store.ProjectRoot != "" {
		return store.ScopeProject
	}
	return store.ScopeGlobal
}

func (a *app) engine() (*link.Engine, error) {
	opts := []link.Option{
		link.WithStrategy(link.StrategyFor(link.Mode(a.settings.SyncMode))),
		link.WithGlobalLock(a.globalLock),
	}
	if a.projectLock != nil {
		opts = append(opts, link.WithProjectLock(a.projectLock))
	}
	return link.NewEngine(a.store, a.agents, opts...)
}

func (a *app) scanner(opts ...scan.Option) (*scan.Scanner, error) {
	opts = append([]scan.Option{scan.WithLocks(a.globalLock, a.projectLock)}, opts...)
	return scan.NewScanner(a.store, a.agents, opts...)
}
