package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/zhy0216/offramp/pkg/logger"
	"github.com/zhy0216/offramp/pkg/transcript"
	"github.com/zhy0216/offramp/pkg/trigger"
	"github.com/zhy0216/offramp/pkg/types"
	"github.com/zhy0216/offramp/pkg/util"
)

func runCheck(args []string, st streams) error {
	fs := newFlagSet("check", "check [--file PATH|-] [--format F] [--options PATH] [--detector NAME] [--json]", st)
	file := fs.StringP("file", "f", "-", "transcript to check, - for stdin")
	format := fs.String("format", "", "transcript format: json, jsonl or yaml (default: from extension, json for stdin)")
	optionsPath := fs.StringP("options", "o", "", "detector options file (default: trigger section of the config file)")
	detector := fs.StringP("detector", "d", "", "run only this detector")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	switch rest := fs.Args(); len(rest) {
	case 0:
	case 1:
		if fs.Changed("file") {
			return fmt.Errorf("give the transcript either as --file or as an argument, not both")
		}
		*file = rest[0]
	default:
		return fmt.Errorf("unexpected argument: %s", rest[1])
	}

	cfg, err := loadConfig(st)
	if err != nil {
		return err
	}

	opts := cfg.Trigger
	if *optionsPath != "" {
		if *optionsPath, err = util.ValidatePath(*optionsPath, ""); err != nil {
			return err
		}
		if opts, err = transcript.ReadOptionsFile(*optionsPath); err != nil {
			return err
		}
	}
	if *file != "-" {
		if *file, err = util.ValidatePath(*file, ""); err != nil {
			return err
		}
	}

	conv, err := readConversation(*file, *format, st)
	if err != nil {
		return err
	}

	res, err := trigger.Check(conv, opts)
	if err != nil {
		return err
	}
	if *detector != "" {
		d, ok := trigger.Lookup(*detector)
		if !ok {
			return fmt.Errorf("unknown detector %q (want %s)", *detector, detectorNames())
		}
		res = trigger.Result{Signals: []trigger.Signal{}}
		if d.Run(conv, opts) {
			res.Signals = append(res.Signals, d.Signal)
			res.Triggered = true
		}
	}

	logger.Named("check").Debug().
		Str("file", *file).
		Int("messages", len(conv)).
		Strs("signals", res.Strings()).
		Msg("conversation checked")

	if *asJSON {
		enc := json.NewEncoder(st.out)
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("writing result: %w", err)
		}
	} else if res.Triggered {
		fmt.Fprintf(st.out, "triggered: %s\n", strings.Join(res.Strings(), ", "))
	} else {
		fmt.Fprintln(st.out, "not triggered")
	}

	if res.Triggered {
		return exitCode(2)
	}
	return nil
}

// readConversation reads from stdin for "-" and from the named file
// otherwise. An explicit format overrides the extension.
func readConversation(path, format string, st streams) ([]types.Message, error) {
	if path != "-" && format == "" {
		return transcript.ReadFile(path)
	}

	f := transcript.FormatJSON
	if format != "" {
		var err error
		if f, err = transcript.ParseFormat(format); err != nil {
			return nil, err
		}
	}

	if path == "-" {
		conv, err := transcript.Decode(st.in, f)
		if err != nil {
			return nil, fmt.Errorf("stdin: %w", err)
		}
		return conv, nil
	}

	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open transcript: %w", err)
	}
	defer r.Close()
	conv, err := transcript.Decode(r, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return conv, nil
}

func detectorNames() string {
	var names []string
	for _, d := range trigger.Detectors() {
		names = append(names, string(d.Signal))
	}
	return strings.Join(names, ", ")
}
