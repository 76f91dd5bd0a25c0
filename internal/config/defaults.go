package config

import (
	"os"
	"time"

	"git.home.luguber.info/inful/assetbuilder/internal/transforms"
)

const (
	DefaultSourceDir   = "src"
	DefaultOutputDir   = "build"
	DefaultHost        = "localhost"
	DefaultPort        = 9000
	DefaultDebounce    = 200 * time.Millisecond
	DefaultTimeout     = 5 * time.Second
	DefaultHistoryPath = ".assetbuilder/history.db"
	DefaultPipeline    = "build"
	DefaultEntry       = "default"
)

// Default returns the conventional configuration: html, styles, scripts, images
// and fonts below src/ are built into build/, "build" runs all five in parallel
// and "default" refers to "build".
func Default() *Config {
	cfg := &Config{
		Version: CurrentVersion,
		Paths:   PathsConfig{Source: DefaultSourceDir, Output: DefaultOutputDir},
		Tasks:   DefaultTasks(),
	}
	cfg.prepareForDecode()
	cfg.applyDefaults()
	return cfg
}

// DefaultTasks returns the five conventional tasks.
func DefaultTasks() []TaskConfig {
	return []TaskConfig{
		{
			Name: "html", Kind: transforms.KindHTML, Inputs: []string{"*.html"}, Output: ".",
			Options: transforms.Options{HTML: transforms.HTML{CollapseWhitespace: true}},
		},
		{
			Name: "styles", Kind: transforms.KindStyles, Inputs: []string{"css/**/*.scss"}, Output: "css",
			Options: transforms.Options{Styles: transforms.Styles{Compress: true, SourceMap: true}},
		},
		{
			Name: "scripts", Kind: transforms.KindScripts, Inputs: []string{"js/**/*.js"}, Output: "js",
			Options: transforms.Options{Scripts: transforms.Scripts{BundleName: transforms.DefaultBundleName, Minify: true}},
		},
		{
			Name: "images", Kind: transforms.KindImages, Inputs: []string{"img/**/*.*"}, Output: "img",
			Options: transforms.Options{Images: transforms.Images{OnlyNewer: true, Progressive: true}},
		},
		{
			Name: "fonts", Kind: transforms.KindCopy, Inputs: []string{"fonts/**/*.*"}, Output: "fonts",
			Options: transforms.Options{Copy: transforms.Copy{OnlyNewer: true}},
		},
	}
}

// applyDefaults fills every unset value. Pipelines default to one parallel
// "build" over all tasks; watch bindings default to one per task on its inputs.
func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = CurrentVersion
	}
	if c.Paths.Source == "" {
		c.Paths.Source = DefaultSourceDir
	}
	if c.Paths.Output == "" {
		c.Paths.Output = DefaultOutputDir
	}
	if c.Tasks == nil {
		c.Tasks = DefaultTasks()
	}
	if c.Pipelines == nil {
		steps := make([]PipelineSpec, 0, len(c.Tasks))
		for _, t := range c.Tasks {
			steps = append(steps, Step(t.Name))
		}
		c.Pipelines = map[string]PipelineSpec{
			DefaultPipeline: ParallelSpec(steps...),
			DefaultEntry:    Step(DefaultPipeline),
		}
	}

	if c.Watch.Bindings == nil {
		for _, t := range c.Tasks {
			c.Watch.Bindings = append(c.Watch.Bindings, BindingConfig{Name: t.Name, Patterns: t.Inputs, Target: t.Name})
		}
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = DefaultDebounce
	}
	if c.Watch.RebuildTarget == "" {
		c.Watch.RebuildTarget = DefaultPipeline
	}

	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = DefaultTimeout
	}
	if c.History.Path == "" {
		c.History.Path = DefaultHistoryPath
	}
	if c.Logging.Level == "" {
		c.Logging.Level = LogLevelInfo
	}
	if c.Logging.Format == "" {
		c.Logging.Format = LogFormatText
	}
}

// prepareForDecode seeds values that a file can only switch off, so absent keys
// keep their defaults.
func (c *Config) prepareForDecode() {
	c.Server.LiveReload = true
	c.Server.Metrics = true
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ASSETBUILDER_LOG_LEVEL"); v != "" {
		c.Logging.Level = NormalizeLogLevel(v)
	}
	if v := os.Getenv("ASSETBUILDER_LOG_FORMAT"); v != "" {
		c.Logging.Format = NormalizeLogFormat(v)
	}
	if v := os.Getenv("ASSETBUILDER_NATS_URL"); v != "" {
		c.Notify.NATS.URL = v
	}
}
