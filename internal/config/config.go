package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Agent types understood by the agent factory.
const (
	ModelRepeatQuery     = "repeat_query"
	ModelRandomCandidate = "random_candidate"
	ModelOpenAI          = "openai"
	ModelOllama          = "ollama"
	ModelAnthropic       = "anthropic"
	ModelGrok            = "grok"
	ModelRemote          = "remote"
)

// TaskInteractive is the only task the world factory knows about.
const TaskInteractive = "interactive"

const defaultIgnoreFields = "label_candidates,text_candidates"

var (
	ErrNoScriptInput = errors.New("chat script mode requires --chateval-input-path")
	ErrNegativeMulti = errors.New("--chateval-multi-num must not be negative")
)

// Options holds every command-line option of an interactive run.
// The yaml tags are the keys a model file may override under "opt".
type Options struct {
	// Main arguments
	Task            string `yaml:"task"`
	Model           string `yaml:"model"`
	ModelFile       string `yaml:"model_file"`
	Datapath        string `yaml:"datapath"`
	Seed            int64  `yaml:"seed"`
	Verbose         bool   `yaml:"verbose"`
	LogDir          string `yaml:"log_dir"`
	Telemetry       bool   `yaml:"telemetry"`
	SessionDB       string `yaml:"session_db"`
	EnvFile         string `yaml:"env_file"`
	PrintArgs       bool   `yaml:"print_args"`
	// InteractiveMode is informational. It is printed with the arguments
	// and no component branches on it.
	InteractiveMode bool   `yaml:"interactive_mode"`

	// Chat script arguments
	DisplayExamples     bool     `yaml:"display_examples"`
	DisplayPrettify     bool     `yaml:"display_prettify"`
	DisplayIgnoreFields string   `yaml:"display_ignore_fields"`
	IgnoreFields        []string `yaml:"-"`
	InteractiveTask     bool     `yaml:"interactive_task"`
	ChatScript          bool     `yaml:"chat_script"`
	ScriptInputPath     string   `yaml:"script_input_path"`
	ScriptOutputPath    string   `yaml:"script_output_path"`
	ChatevalMultiNum    int      `yaml:"chateval_multi_num"`
	ChatevalMulti       bool     `yaml:"chateval_multi"`

	// Local human arguments
	LocalHumanCandidatesFile string `yaml:"local_human_candidates_file"`
	SingleTurn               bool   `yaml:"single_turn"`
}

// Default returns the option set a bare invocation starts from.
func Default() Options {
	return Options{
		Task:                TaskInteractive,
		Datapath:            "data",
		Seed:                42,
		LogDir:              "logs",
		SessionDB:           filepath.Join("data", "parley.db"),
		EnvFile:             ".env",
		PrintArgs:           true,
		InteractiveMode:     true,
		DisplayIgnoreFields: defaultIgnoreFields,
		InteractiveTask:     true,
	}
}

// Normalize trims values, derives IgnoreFields and validates combinations.
func Normalize(opts Options) (Options, error) {
	opts.Task = strings.TrimSpace(opts.Task)
	if opts.Task == "" {
		opts.Task = TaskInteractive
	}
	opts.Model = strings.TrimSpace(opts.Model)
	opts.ModelFile = strings.TrimSpace(opts.ModelFile)
	opts.Datapath = strings.TrimSpace(opts.Datapath)
	opts.LogDir = strings.TrimSpace(opts.LogDir)
	opts.SessionDB = strings.TrimSpace(opts.SessionDB)
	opts.ScriptInputPath = strings.TrimSpace(opts.ScriptInputPath)
	opts.ScriptOutputPath = strings.TrimSpace(opts.ScriptOutputPath)
	opts.LocalHumanCandidatesFile = strings.TrimSpace(opts.LocalHumanCandidatesFile)
	opts.IgnoreFields = SplitFields(opts.DisplayIgnoreFields)

	if opts.ChatScript && opts.ScriptInputPath == "" {
		return opts, ErrNoScriptInput
	}
	if opts.ChatevalMultiNum < 0 {
		return opts, fmt.Errorf("%w: %d", ErrNegativeMulti, opts.ChatevalMultiNum)
	}
	return opts, nil
}

// SplitFields parses a comma separated field list, dropping empty entries.
func SplitFields(list string) []string {
	var fields []string
	for _, f := range strings.Split(list, ",") {
		f = strings.TrimSpace(f)
		if f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}
