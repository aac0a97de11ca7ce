package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/truffle-ai/saiki-sub004/agent"
	"github.com/truffle-ai/saiki-sub004/config"
	"github.com/truffle-ai/saiki-sub004/internal/metrics"
	"github.com/truffle-ai/saiki-sub004/internal/server"
	"github.com/truffle-ai/saiki-sub004/llm"
	"github.com/truffle-ai/saiki-sub004/llm/tokenizer"
	"github.com/truffle-ai/saiki-sub004/llm/tools"
	"github.com/truffle-ai/saiki-sub004/llm/tools/openapi"
	"github.com/truffle-ai/saiki-sub004/providers"
)

// repl owns the interactive loop and the shared runtime the sessions hang
// off. Config reloads update the baseline for sessions created afterwards;
// the running session keeps its resolved settings.
type repl struct {
	mu       sync.Mutex
	baseline llm.Config

	cfg        *config.Config
	deps       agent.SessionDeps
	session    *agent.Session
	watcher    *config.Watcher
	metricsSrv *server.Manager
	logger     *zap.Logger
}

func newREPL(cfg *config.Config, loader *config.Loader, configPath string, logger *zap.Logger) (*repl, error) {
	providerReg := llm.NewRegistry(logger)
	if err := providers.Register(providerReg); err != nil {
		return nil, err
	}

	tokenizerReg := tokenizer.NewRegistry()
	tokenizer.RegisterOpenAITokenizers(tokenizerReg)

	var collector *metrics.Collector
	var metricsSrv *server.Manager
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, nil, logger)
		if cfg.Metrics.Addr != "" {
			srvCfg := server.DefaultConfig()
			srvCfg.Addr = cfg.Metrics.Addr
			metricsSrv = server.NewManager(srvCfg, logger)
		}
	}

	toolReg := tools.NewRegistry(cfg.Tools.DefaultTimeout, logger)
	executor := tools.NewDefaultExecutor(toolReg, cfg.Tools.MaxConcurrent, logger)

	if len(cfg.Tools.OpenAPISpecs) > 0 {
		generator := openapi.NewGenerator(openapi.GeneratorConfig{Timeout: cfg.Tools.DefaultTimeout}, logger)
		invoker := openapi.NewInvoker(cfg.Tools.DefaultTimeout, logger)
		for _, source := range cfg.Tools.OpenAPISpecs {
			spec, err := generator.LoadSpec(context.Background(), source)
			if err != nil {
				return nil, fmt.Errorf("load openapi spec %s: %w", source, err)
			}
			generated := generator.GenerateTools(spec, openapi.GenerateOptions{})
			if err := invoker.Bind(toolReg, generated); err != nil {
				return nil, err
			}
		}
	}

	bus := agent.NewEventBus(logger)
	bus.SetCollector(collector)

	prompts := agent.NewPromptManager(logger)
	if cfg.Prompt.System != "" {
		if err := prompts.Register(agent.NewStaticContributor("inline", 0, cfg.Prompt.System)); err != nil {
			return nil, err
		}
	}
	for i, path := range cfg.Prompt.Files {
		id := fmt.Sprintf("file-%d", i)
		if err := prompts.Register(agent.NewFileContributor(id, 10+i, path)); err != nil {
			return nil, err
		}
	}

	r := &repl{
		baseline: cfg.LLM.Baseline(cfg.Completion),
		cfg:      cfg,
		deps: agent.SessionDeps{
			Providers:    providerReg,
			Tokenizers:   tokenizerReg,
			Tools:        toolReg,
			Executor:     executor,
			Bus:          bus,
			Collector:    collector,
			Prompts:      prompts,
			Retry:        cfg.Completion.Retry.Policy(),
			Logger:       logger,
			ChainFactory: cfg.Compression.ChainFactory(),
		},
		logger: logger,
	}

	// Print streaming deltas as they arrive.
	bus.Subscribe(agent.EventChunk, func(ev agent.Event) {
		fmt.Print(ev.Content)
	})

	r.metricsSrv = metricsSrv

	if configPath != "" {
		watcher, err := config.NewWatcher(loader, r.onReload, config.WithWatcherLogger(logger))
		if err != nil {
			return nil, err
		}
		r.watcher = watcher
	}

	session, err := agent.NewSession(r.baseline, nil, r.deps)
	if err != nil {
		return nil, err
	}
	r.session = session
	return r, nil
}

// onReload swaps the baseline used by future sessions.
func (r *repl) onReload(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	r.baseline = cfg.LLM.Baseline(cfg.Completion)
	r.logger.Info("baseline config updated, applies to new sessions",
		zap.String("provider", r.baseline.Provider),
		zap.String("model", r.baseline.Model))
}

func (r *repl) run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if r.metricsSrv != nil {
		if err := r.metricsSrv.Start(); err != nil {
			return err
		}
		defer r.metricsSrv.Shutdown(ctx)
	}
	if r.watcher != nil {
		if err := r.watcher.Start(ctx); err != nil {
			return err
		}
		defer r.watcher.Stop()
	}
	defer r.deps.Bus.Stop()
	defer r.session.Close()

	cfg := r.session.Config()
	fmt.Printf("saiki chat (%s/%s). Type /help for commands.\n", cfg.Provider, cfg.Model)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if done := r.command(line); done {
				return nil
			}
			continue
		}

		response, err := r.session.Run(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(response)
	}
}

// command handles a slash command; returns true on exit.
func (r *repl) command(line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/exit", "/quit":
		return true

	case "/help":
		printUsage()

	case "/reset":
		r.session.Reset()
		fmt.Println("history cleared")

	case "/history":
		for _, msg := range r.session.History() {
			content := msg.Content
			if content == "" && len(msg.ToolCalls) > 0 {
				names := make([]string, 0, len(msg.ToolCalls))
				for _, tc := range msg.ToolCalls {
					names = append(names, tc.Name)
				}
				content = "[tool calls: " + strings.Join(names, ", ") + "]"
			}
			fmt.Printf("%-9s %s\n", msg.Role, content)
		}

	case "/tokens":
		fmt.Printf("%d tokens\n", r.session.TokenCount(context.Background()))

	case "/switch":
		if len(fields) != 3 {
			fmt.Println("usage: /switch <provider> <model>")
			return false
		}
		override := &llm.Override{Provider: fields[1], Model: fields[2]}
		if err := r.session.SwitchLLM(override); err != nil {
			fmt.Fprintf(os.Stderr, "switch rejected: %v\n", err)
			return false
		}
		fmt.Printf("switched to %s/%s\n", fields[1], fields[2])

	case "/new":
		r.mu.Lock()
		baseline := r.baseline
		r.mu.Unlock()
		session, err := agent.NewSession(baseline, nil, r.deps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create session: %v\n", err)
			return false
		}
		r.session.Close()
		r.session = session
		cfg := session.Config()
		fmt.Printf("new session (%s/%s)\n", cfg.Provider, cfg.Model)

	default:
		fmt.Printf("unknown command %s\n", fields[0])
	}
	return false
}
