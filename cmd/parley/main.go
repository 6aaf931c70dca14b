package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"parley/internal/agent"
	"parley/internal/config"
	"parley/internal/interactive"
	"parley/internal/store"
	"parley/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// After the first signal, restore default handling so a second one kills
	// the process.
	go func() {
		<-ctx.Done()
		stop()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// flagAliases maps the short multi-letter option names onto their long form.
var flagAliases = map[string]string{
	"it":   "interactive-task",
	"sc":   "script-chateval",
	"scip": "chateval-input-path",
	"scop": "chateval-output-path",
	"mf":   "model-file",
}

// normalizeFlag accepts underscores in flag names and resolves aliases.
func normalizeFlag(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	name = strings.ReplaceAll(name, "_", "-")
	if long, ok := flagAliases[name]; ok {
		name = long
	}
	return pflag.NormalizedName(name)
}

func newRootCmd() *cobra.Command {
	opts := config.Default()

	root := &cobra.Command{
		Use:   "parley",
		Short: "Interactively chat with a dialogue model",
		Long: `Talk to a dialogue agent from the terminal.

The agent comes from --model or a saved model file (--model-file). Enter
[DONE] to end the current chat and start a new one, [EXIT] to quit.

With --script-chateval the utterances are read from --chateval-input-path and
the replies are written to --chateval-output-path instead.`,
		Example: `  parley --model repeat_query
  parley --mf models:llama --display-examples
  parley --mf bot.yaml --sc --scip questions.txt --scop answers.tsv`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("session-db") {
				opts.SessionDB = filepath.Join(opts.Datapath, "parley.db")
			}
			return runChat(cmd, opts)
		},
	}
	root.SetGlobalNormalizationFunc(normalizeFlag)

	bindPersistentFlags(root.PersistentFlags(), &opts)
	bindRunFlags(root.Flags(), &opts)
	root.AddCommand(newSessionsCmd(&opts), newServeCmd(&opts))
	return root
}

// bindPersistentFlags registers the options shared with subcommands.
func bindPersistentFlags(fs *pflag.FlagSet, opts *config.Options) {
	fs.StringVarP(&opts.Model, "model", "m", opts.Model, fmt.Sprintf("agent type (%s)", strings.Join(agent.Models(), ", ")))
	fs.StringVar(&opts.ModelFile, "model-file", opts.ModelFile, "saved model file; a models: prefix resolves under <datapath>/models")
	fs.StringVar(&opts.Datapath, "datapath", opts.Datapath, "root directory for models: paths and the session database")
	fs.StringVar(&opts.SessionDB, "session-db", opts.SessionDB, `sqlite conversation store (default "<datapath>/parley.db", "" disables it)`)
	fs.Int64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	fs.BoolVarP(&opts.Verbose, "verbose", "v", opts.Verbose, "debug logging")
	fs.StringVar(&opts.LogDir, "log-dir", opts.LogDir, "directory for rotating log files")
	fs.BoolVar(&opts.Telemetry, "telemetry", opts.Telemetry, "export OpenTelemetry traces and metrics into the log directory")
	fs.StringVar(&opts.EnvFile, "env-file", opts.EnvFile, "dotenv file with backend credentials")
}

// bindRunFlags registers the chat options.
func bindRunFlags(fs *pflag.FlagSet, opts *config.Options) {
	// Main arguments
	fs.StringVarP(&opts.Task, "task", "t", opts.Task, "task to chat in")
	fs.BoolVar(&opts.PrintArgs, "print-args", opts.PrintArgs, "print the resolved arguments once the model is loaded")

	// Chat script arguments
	fs.BoolVarP(&opts.DisplayExamples, "display-examples", "d", opts.DisplayExamples, "display each exchange after it happens")
	fs.BoolVar(&opts.DisplayPrettify, "display-prettify", opts.DisplayPrettify, "render candidate lists as tables")
	fs.StringVar(&opts.DisplayIgnoreFields, "display-ignore-fields", opts.DisplayIgnoreFields, "comma separated message fields not to display")
	fs.BoolVar(&opts.InteractiveTask, "interactive-task", opts.InteractiveTask, "create the interactive version of the task")
	fs.BoolVar(&opts.ChatScript, "script-chateval", opts.ChatScript, "chat from a script file instead of the keyboard")
	fs.StringVar(&opts.ScriptInputPath, "chateval-input-path", opts.ScriptInputPath, "script of utterances, one per line")
	fs.StringVar(&opts.ScriptOutputPath, "chateval-output-path", opts.ScriptOutputPath, "file the replies are written to (default stdout)")
	fs.IntVar(&opts.ChatevalMultiNum, "chateval-multi-num", opts.ChatevalMultiNum, "turns per conversation in multi-turn evaluation")
	fs.BoolVar(&opts.ChatevalMulti, "chateval-multi", opts.ChatevalMulti, "multi-turn evaluation")
	_ = fs.MarkHidden("chateval-multi")

	// Local human arguments
	fs.StringVar(&opts.LocalHumanCandidatesFile, "local-human-candidates-file", opts.LocalHumanCandidatesFile, "file of label candidates, one per line")
	fs.BoolVar(&opts.SingleTurn, "single-turn", opts.SingleTurn, "every message ends the episode")
}

// services are the process-wide logger and OpenTelemetry instruments.
type services struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	meter   metric.Meter
	closers []func()
}

func (s *services) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// startServices loads the dotenv file, then sets up logging and, with
// --telemetry, trace and metric export.
func startServices(ctx context.Context, opts config.Options) (*services, error) {
	if err := config.LoadEnv(opts.EnvFile); err != nil {
		return nil, err
	}

	logger, logFile, err := telemetry.InitLogger(opts.LogDir, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	svc := &services{logger: logger, closers: []func(){func() { logFile.Close() }}}

	svc.tracer, svc.meter = telemetry.Noop()
	if opts.Telemetry {
		tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx, opts.LogDir)
		if err != nil {
			svc.close()
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		svc.tracer, svc.meter = tracer, meter
		svc.closers = append(svc.closers, cleanup)
	}
	return svc, nil
}

func runChat(cmd *cobra.Command, opts config.Options) error {
	ctx := cmd.Context()
	svc, err := startServices(ctx, opts)
	if err != nil {
		return err
	}
	defer svc.close()

	var st *store.Store
	if opts.SessionDB != "" {
		st, err = store.Open(opts.SessionDB)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer st.Close()
	}

	return interactive.Run(ctx, opts, interactive.Deps{
		In:          cmd.InOrStdin(),
		Out:         cmd.OutOrStdout(),
		Logger:      svc.logger,
		Tracer:      svc.tracer,
		Meter:       svc.meter,
		Store:       st,
		Credentials: config.CredentialsFromEnv(),
	})
}
