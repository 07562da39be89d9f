package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/jingkaihe/skillkit/pkg/fsutil"
	"github.com/jingkaihe/skillkit/pkg/lock"
	"github.com/jingkaihe/skillkit/pkg/presenter"
	"github.com/jingkaihe/skillkit/pkg/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect skill provenance",
	Long: `Inspect the lock files recording where installed skills came from: the global
lock at ~/.agents/.skill-lock.json and the project lock at
<project>/skills-lock.json.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var lockShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the lock file of the current scope",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, err := getOutputFormat(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cmd)
		if err != nil {
			return err
		}

		if a.scope() == store.ScopeProject {
			f, err := a.projectLock.Read()
			if err != nil {
				return err
			}
			if format != formatTable {
				return writeStructured(os.Stdout, format, f)
			}
			rows := make([][]string, 0, len(f.Skills))
			for _, name := range sortedKeys(f.Skills) {
				e := f.Skills[name]
				rows = append(rows, []string{name, e.Source, string(e.SourceType), presenter.Truncate(e.ComputedHash, 12)})
			}
			presenter.Section(a.projectLock.Path())
			presenter.Table([]string{"NAME", "SOURCE", "TYPE", "HASH"}, rows)
			return nil
		}

		f, err := a.globalLock.Read()
		if err != nil {
			return err
		}
		if format != formatTable {
			return writeStructured(os.Stdout, format, f)
		}
		rows := make([][]string, 0, len(f.Skills))
		for _, name := range sortedKeys(f.Skills) {
			e := f.Skills[name]
			rows = append(rows, []string{name, e.Source, string(e.SourceType), dash(e.UpdatedAt), dash(presenter.Truncate(e.SkillFolderHash, 12))})
		}
		presenter.Section(a.globalLock.Path())
		presenter.Table([]string{"NAME", "SOURCE", "TYPE", "UPDATED", "HASH"}, rows)
		return nil
	},
}

var lockHashCmd = &cobra.Command{
	Use:   "hash <dir>",
	Short: "Print the content hash of a skill folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		hash, err := lock.HashFolder(fsutil.ExpandHome(args[0], a.settings.HomeDir))
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

var lockCheckCmd = &cobra.Command{
	Use:   "check <skill>",
	Short: "Check a skill against its recorded hash",
	Long: `Compare the recorded hash of a skill with either a hash computed elsewhere
(--remote-hash) or the current content of its canonical copy.

Examples:
  skillkit lock check notes
  skillkit lock check notes --remote-hash 3f2a...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		name := args[0]
		remote, _ := cmd.Flags().GetString("remote-hash")

		if remote != "" {
			if a.scope() == store.ScopeProject {
				return errors.New("--remote-hash is only supported for global skills")
			}
			update, err := a.globalLock.CheckUpdate(name, remote)
			if err != nil {
				return err
			}
			if update {
				presenter.Warning(fmt.Sprintf("%s has an update available", name))
			} else {
				presenter.Success(fmt.Sprintf("%s is up to date", name))
			}
			return nil
		}

		canonical, err := a.store.SkillPath(name, a.scope())
		if err != nil {
			return err
		}
		if !fsutil.IsDir(canonical) {
			return errors.Errorf("no canonical copy of %s at %s", name, canonical)
		}

		var drift bool
		var current string
		if a.scope() == store.ScopeProject {
			drift, current, err = a.projectLock.Drift(name, canonical)
		} else {
			drift, current, err = a.globalLock.Drift(name, canonical)
		}
		if err != nil {
			return err
		}
		if drift {
			presenter.Warning(fmt.Sprintf("%s changed since it was installed (now %s)", name, current))
			if a.scope() == store.ScopeProject {
				if f, err := a.projectLock.Read(); err == nil {
					if src, ok := f.GitHubSource(name); ok {
						presenter.Info(fmt.Sprintf("Reinstall with: skillkit install %s --name %s --project %s", src, name, a.store.ProjectRoot))
					}
				}
			}
		} else {
			presenter.Success(fmt.Sprintf("%s matches its lock entry", name))
		}
		return nil
	},
}

func init() {
	addOutputFlag(lockShowCmd, formatTable)
	lockCheckCmd.Flags().String("remote-hash", "", "Hash of the upstream skill folder")

	lockCmd.AddCommand(lockShowCmd)
	lockCmd.AddCommand(lockHashCmd)
	lockCmd.AddCommand(lockCheckCmd)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
