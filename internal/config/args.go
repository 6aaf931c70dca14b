package config

import (
	"fmt"
	"io"
	"sort"
	"strconv"
)

type argGroup struct {
	title string
	args  map[string]string
}

func (o Options) groups() []argGroup {
	return []argGroup{
		{
			title: "Main Arguments",
			args: map[string]string{
				"task":             o.Task,
				"model":            o.Model,
				"model_file":       o.ModelFile,
				"datapath":         o.Datapath,
				"seed":             strconv.FormatInt(o.Seed, 10),
				"verbose":          strconv.FormatBool(o.Verbose),
				"log_dir":          o.LogDir,
				"telemetry":        strconv.FormatBool(o.Telemetry),
				"session_db":       o.SessionDB,
				"interactive_mode": strconv.FormatBool(o.InteractiveMode),
			},
		},
		{
			title: "Chat Script Arguments",
			args: map[string]string{
				"display_examples":      strconv.FormatBool(o.DisplayExamples),
				"display_prettify":      strconv.FormatBool(o.DisplayPrettify),
				"display_ignore_fields": o.DisplayIgnoreFields,
				"interactive_task":      strconv.FormatBool(o.InteractiveTask),
				"chat_script":           strconv.FormatBool(o.ChatScript),
				"script_input_path":     o.ScriptInputPath,
				"script_output_path":    o.ScriptOutputPath,
				"chateval_multi_num":    strconv.Itoa(o.ChatevalMultiNum),
				"chateval_multi":        strconv.FormatBool(o.ChatevalMulti),
			},
		},
		{
			title: "Local Human Arguments",
			args: map[string]string{
				"local_human_candidates_file": o.LocalHumanCandidatesFile,
				"single_turn":                 strconv.FormatBool(o.SingleTurn),
			},
		},
	}
}

// PrintArgs writes the options grouped by section, keys sorted, skipping
// empty values.
func PrintArgs(w io.Writer, o Options) {
	for _, g := range o.groups() {
		keys := make([]string, 0, len(g.args))
		for k, v := range g.args {
			if v == "" {
				continue
			}
			keys = append(keys, k)
		}
		if len(keys) == 0 {
			continue
		}
		sort.Strings(keys)
		fmt.Fprintf(w, "[ %s: ]\n", g.title)
		for _, k := range keys {
			fmt.Fprintf(w, "[  %s: %s ]\n", k, g.args[k])
		}
	}
}
