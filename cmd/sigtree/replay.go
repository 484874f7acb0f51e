package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/AnatoleLucet/sigtree/internal"
	"github.com/AnatoleLucet/sigtree/internal/config"
	"github.com/AnatoleLucet/sigtree/internal/observability"
	"github.com/AnatoleLucet/sigtree/internal/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Script is a snapshot plus the actions to replay on it. It is read as YAML,
// which also accepts JSON.
type Script struct {
	State   map[string]any `yaml:"state"`
	Actions []Step         `yaml:"actions"`
}

// Step dispatches Action on the root store. Routed names ("todos/@title")
// reach sub-stores.
type Step struct {
	Action  string `yaml:"action"`
	Payload []any  `yaml:"payload"`
}

func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}

	var sc Script
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}

	return &sc, nil
}

type replayOptions struct {
	configPath string
	logLevel   string
	watch      []string
	metrics    bool
}

func replayCmd() *cobra.Command {
	var opts replayOptions

	cmd := &cobra.Command{
		Use:   "replay <script>",
		Short: "Apply an action script to a snapshot and print the resulting state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if opts.configPath != "" {
				var err error
				if cfg, err = config.Load(opts.configPath); err != nil {
					return err
				}
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			if opts.metrics {
				cfg.Metrics.Enabled = true
			}

			sc, err := LoadScript(args[0])
			if err != nil {
				return err
			}

			logger := observability.NewLoggerTo(cmd.ErrOrStderr(), "sigtree", cfg.Log)

			r := &replayer{cfg: cfg, logger: logger, watch: opts.watch, out: cmd.OutOrStdout()}
			if cfg.Metrics.Enabled {
				r.registry = prometheus.NewRegistry()
			}

			result, err := r.Run(sc)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}

			if r.registry != nil {
				return writeMetrics(cmd.ErrOrStderr(), r.registry)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Config file (.toml, .yaml)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().StringSliceVarP(&opts.watch, "watch", "w", nil, "Print every change of a field path such as todos/title")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "Print dispatch and queue metrics to stderr")

	return cmd
}

type replayer struct {
	cfg      config.Config
	logger   zerolog.Logger
	registry *prometheus.Registry
	watch    []string
	out      io.Writer
}

func (r *replayer) middleware() ([]state.Middleware, error) {
	mw := []state.Middleware{
		state.LoggingMiddleware(r.logger),
		state.ProtectorMiddleware,
	}

	if r.registry != nil {
		m, err := observability.NewMetrics(r.cfg.Metrics.Namespace, r.registry)
		if err != nil {
			return nil, err
		}

		internal.GetRuntime().Queue().SetObserver(m)
		mw = append(mw, m.DispatchMiddleware())
	}

	if r.cfg.Tracing.Enabled {
		mw = append(mw, state.TracingMiddleware(state.WithTracerName(r.cfg.Tracing.TracerName)))
	}

	return mw, nil
}

// Run builds the store tree from the snapshot, replays every step and
// returns the final state, defaults included.
func (r *replayer) Run(sc *Script) (map[string]any, error) {
	rt := internal.GetRuntime()
	rt.SetLogger(r.logger)

	mw, err := r.middleware()
	if err != nil {
		return nil, err
	}

	root, err := buildStore(sc.State, state.Mutable(true), state.WithMiddleware(mw...), state.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}
	defer root.Dispose()

	for _, path := range r.watch {
		if err := r.watchPath(root, path); err != nil {
			return nil, err
		}
	}

	for i, step := range sc.Actions {
		if step.Action == "" {
			return nil, fmt.Errorf("step %d: missing action", i)
		}

		if _, err := root.Dispatch(step.Action, step.Payload...); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}

		rt.Flush()
	}

	return export(root), nil
}

func (r *replayer) watchPath(root *state.Store, path string) error {
	route := strings.Split(path, "/")
	field := route[len(route)-1]

	target := root
	for _, name := range route[:len(route)-1] {
		if target = target.Child(name); target == nil {
			return fmt.Errorf("watch %s: no store %q", path, name)
		}
	}
	if !slices.Contains(target.Fields(), field) {
		return fmt.Errorf("watch %s: %w: %s", path, state.ErrUnknownField, field)
	}

	target.Watch(func() any { return target.Get(field) }, func(v any) {
		fmt.Fprintf(r.out, "%s = %v\n", path, v)
	}, internal.IgnoreFirstRun())

	return nil
}

var errReservedKey = errors.New(`snapshot keys can't include "/", "@" or "."`)

// buildStore mirrors a snapshot: objects become linked sub-stores and every
// other value a field of its store.
func buildStore(snapshot map[string]any, opts ...state.Option) (*state.Store, error) {
	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		if strings.ContainsAny(key, "/@.") {
			return nil, fmt.Errorf("%w: %q", errReservedKey, key)
		}
		keys = append(keys, key)
	}
	slices.Sort(keys)

	setup := func(s *state.Store) {
		for _, key := range keys {
			if _, ok := snapshot[key].(map[string]any); !ok {
				s.DefineState(key, state.ByVal, snapshot[key])
			}
		}
	}

	s := state.New(append(opts, state.WithSetup(setup))...)

	for _, key := range keys {
		sub, ok := snapshot[key].(map[string]any)
		if !ok {
			continue
		}

		child, err := buildStore(sub)
		if err != nil {
			return nil, err
		}
		if err := s.Link(key, child); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func export(s *state.Store) map[string]any {
	out := s.ToJSON(true)
	for _, name := range s.Children() {
		out[name] = export(s.Child(name))
	}

	return out
}
