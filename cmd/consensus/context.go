package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/banshee-data/markup-consensus/internal/config"
	"github.com/banshee-data/markup-consensus/internal/pipeline"
	"github.com/banshee-data/markup-consensus/internal/store"
)

type globalFlags struct {
	config          string
	images          string
	wrongCases      string
	out             string
	db              string
	imagesStructure string
	markupStructure string
}

// overrides returns the flags that were given as a partial configuration.
func (f *globalFlags) overrides() *config.PipelineConfig {
	cfg := config.Empty()
	set := func(dst **string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = &v
		}
	}
	set(&cfg.ImagesDir, f.images)
	set(&cfg.WrongCasesDir, f.wrongCases)
	set(&cfg.OutputDir, f.out)
	set(&cfg.DatabasePath, f.db)
	set(&cfg.ImagesDirStructure, f.imagesStructure)
	set(&cfg.MarkupStructure, f.markupStructure)
	return cfg
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.PipelineConfig
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

// ensureConfig resolves defaults, then the config file, then global flags.
func (c *commandContext) ensureConfig() (*config.PipelineConfig, error) {
	c.configOnce.Do(func() {
		cfg := config.Defaults()
		if path := strings.TrimSpace(c.flags.config); path != "" {
			loaded, err := config.Load(path)
			if err != nil {
				c.configErr = err
				return
			}
			cfg.Merge(loaded)
		}
		cfg.Merge(c.flags.overrides())
		if err := cfg.Validate(); err != nil {
			c.configErr = fmt.Errorf("invalid configuration: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withRunner runs fn with a Runner configured from the resolved
// configuration plus command-specific overrides. The run store is opened for
// the duration of fn when a database path is configured.
func (c *commandContext) withRunner(overrides *config.PipelineConfig, fn func(*pipeline.Runner) error) error {
	base, err := c.ensureConfig()
	if err != nil {
		return err
	}
	cfg := config.Empty()
	cfg.Merge(base)
	cfg.Merge(overrides)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	r := &pipeline.Runner{Config: cfg}
	if path := cfg.GetDatabasePath(); path != "" {
		s, err := store.Open(path)
		if err != nil {
			return err
		}
		defer s.Close()
		r.Store = s
	}
	return fn(r)
}

// withStore runs fn with the run database opened and migrated.
func (c *commandContext) withStore(fn func(*store.Store) error) error {
	return c.openDatabase(store.Open, fn)
}

// withDB runs fn with the run database opened as is, for schema commands.
func (c *commandContext) withDB(fn func(*store.Store) error) error {
	return c.openDatabase(store.OpenDB, fn)
}

func (c *commandContext) openDatabase(open func(string) (*store.Store, error), fn func(*store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	path := cfg.GetDatabasePath()
	if path == "" {
		return fmt.Errorf("no run database configured (set database_path or --db)")
	}
	s, err := open(path)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
