// Command csml is the bot-author CLI: scaffold a bot directory and
// simulate a single interaction against it without a server or database
// (spec.md §6 "CLI: init, run"), grounded on cmd/tarsy/main.go's
// flag-based subcommand style (no third-party CLI framework appears
// anywhere in the retrieval pack's complete example repos).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/csml-run/csml-engine/pkg/bot"
	"github.com/csml-run/csml-engine/pkg/driver"
	"github.com/csml-run/csml-engine/pkg/engversion"
	"github.com/csml-run/csml-engine/pkg/store/memstore"
)

const usage = `usage: csml <command> [flags]

commands:
  init    scaffold a bot directory in the current directory
  run     load the bot in the current directory and simulate an interaction
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "run":
		err = runRun(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	case "-version", "--version", "version":
		fmt.Println(engversion.Full())
		return
	default:
		fmt.Fprintf(os.Stderr, "csml: unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("csml: %v", err)
	}
}

const defaultFlowFile = "main.csml"

const scaffoldFlow = `start: {
  say "Hello! Say anything and I'll echo it back."
  goto step echo
}

echo: {
  say "You said: " + _event.get("content").get("text")
  hold
}
`

// runInit scaffolds bot.yaml plus one flow file in the current directory
// (spec.md §6 "init (scaffold a bot directory)").
func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	name := fs.String("name", "my-bot", "bot name")
	dir := fs.String("dir", ".", "directory to scaffold into")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(filepath.Join(*dir, bot.ManifestFileName)); err == nil {
		return fmt.Errorf("%s already exists in %s", bot.ManifestFileName, *dir)
	}

	m := bot.Manifest{
		Name:        *name,
		DefaultFlow: "main",
		Flows: []bot.FlowManifest{
			{Name: "main", File: defaultFlowFile, Commands: []string{"hello", "hi"}},
		},
	}
	raw, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(*dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(*dir, bot.ManifestFileName), raw, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(*dir, defaultFlowFile), []byte(scaffoldFlow), 0o644); err != nil {
		return err
	}

	fmt.Printf("scaffolded %s in %s\n", *name, *dir)
	return nil
}

// runRun loads bot.yaml from the current directory, builds the AST, and
// feeds it one simulated request through an in-memory store (spec.md §6
// "run ... simulate an interaction"): no database or server is involved.
func runRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	text := fs.String("text", "hello", "simulated event text")
	flowFlag := fs.String("flow", "", "flow to start in, defaults to the bot's default flow")
	step := fs.String("step", "start", "step to start at")
	debug := fs.Bool("debug", false, "include the evaluator trace in the response")
	dir := fs.String("dir", ".", "bot directory to load")
	userID := fs.String("user", "cli-user", "simulated user id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	m, err := bot.LoadDir(*dir)
	if err != nil {
		return fmt.Errorf("load bot: %w", err)
	}
	built, errs := bot.Build(m)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e)
		}
		return fmt.Errorf("bot has %d build error(s)", len(errs))
	}

	ms := memstore.New()
	d := driver.New(ms.Facade(), nil, nil, nil, *debug)

	req := driver.Request{
		RequestID: "cli",
		Client:    driver.Client{BotID: m.Name, ChannelID: "cli", UserID: *userID},
		Payload:   driver.Payload{ContentType: "text", Content: map[string]any{"text": *text}},
	}
	if *flowFlag != "" || *step != "start" {
		req.Payload = driver.Payload{
			ContentType: "flow_trigger",
			Content:     map[string]any{"flow_id": *flowFlag, "step_id": *step},
		}
	}

	resp, switchBot, err := d.Run(context.Background(), built, req)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if switchBot != nil {
		fmt.Fprintf(os.Stderr, "note: interaction ended in a goto bot %q; the CLI does not chain bot switches\n", switchBot.BotID)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
