// Command saiki is an interactive agent chat CLI.
//
// Usage:
//
//	saiki chat                      # start a chat session
//	saiki chat --config saiki.yaml  # with a config file
//	saiki version                   # show version information
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/truffle-ai/saiki-sub004/config"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "chat":
		runChat(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	prompt := fs.String("prompt", "", "Inline system prompt override")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *prompt != "" {
		cfg.Prompt.System = *prompt
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.Log.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	repl, err := newREPL(cfg, loader, *configPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}
	if err := repl.run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("saiki %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`saiki - interactive AI agent CLI

Usage:
  saiki <command> [options]

Commands:
  chat      Start an interactive chat session
  version   Show version information
  help      Show this help message

Options for 'chat':
  --config <path>   Path to configuration file (YAML)
  --prompt <text>   Inline system prompt override

In-chat commands:
  /switch <provider> <model>   Switch the session to another LLM
  /history                     Print the conversation history
  /tokens                      Print the current token count
  /reset                       Clear the conversation history
  /new                         Start a fresh session with current config
  /exit                        Quit`)
}
