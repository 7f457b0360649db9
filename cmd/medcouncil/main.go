// Command medcouncil is the terminal client for the multi-agent medical
// consultation service. By default it launches the interactive TUI; with
// -question it runs one consultation headless and prints the report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mzhao/medcouncil/internal/config"
	"github.com/mzhao/medcouncil/internal/consult"
	"github.com/mzhao/medcouncil/internal/journal"
	"github.com/mzhao/medcouncil/internal/tui"
)

func main() {
	var (
		configDir  = flag.String("config", "", "config directory (default ~/.medcouncil)")
		backendURL = flag.String("backend", "", "backend base URL (overrides config and env)")
		model      = flag.String("model", "", "model name (overrides config)")
		mock       = flag.Bool("mock", false, "use the built-in scripted backend instead of HTTP")
		question   = flag.String("question", "", "run one consultation headless with this question")
	)
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "medcouncil: %v\n", err)
		os.Exit(1)
	}
	if *backendURL != "" {
		cfg.File.Backend.BaseURL = *backendURL
	}
	if *model != "" {
		cfg.File.Backend.Model = *model
	}

	backend, err := buildBackend(cfg, *mock)
	if err != nil {
		fmt.Fprintf(os.Stderr, "medcouncil: %v\n", err)
		os.Exit(1)
	}

	if *question != "" {
		if err := runHeadless(cfg, backend, *question); err != nil {
			fmt.Fprintf(os.Stderr, "medcouncil: %v\n", err)
			os.Exit(1)
		}
		return
	}

	log, err := journal.Open(cfg.LogPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "medcouncil: %v\n", err)
		os.Exit(1)
	}
	log.Info("客户端启动 · backend=%s mock=%v", cfg.BackendURL(), *mock)

	app := tui.NewApp(backend,
		tui.WithModel(cfg.Model()),
		tui.WithPollInterval(cfg.PollInterval()),
		tui.WithExampleQuestions(cfg.ExampleQuestions()),
		tui.WithJournal(log),
	)
	if _, err := tea.NewProgram(app, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "medcouncil: %v\n", err)
		os.Exit(1)
	}
}

func buildBackend(cfg *config.Config, mock bool) (consult.Backend, error) {
	if mock {
		return consult.NewScriptedBackend(consult.DemoScript()), nil
	}
	return consult.NewHTTPBackend(cfg.BackendURL())
}

// runHeadless drives one consultation with the rendering-free runner,
// printing each progress step and the final report to stdout.
func runHeadless(cfg *config.Config, backend consult.Backend, question string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var lastStep string
	runner := consult.NewRunner(backend,
		consult.WithModel(cfg.Model()),
		consult.WithPollInterval(cfg.PollInterval()),
		consult.WithUpdateFunc(func(state consult.State) {
			if state.CurrentStep != "" && state.CurrentStep != lastStep {
				lastStep = state.CurrentStep
				fmt.Printf("[%3.0f%%] %s\n", state.Progress, state.CurrentStep)
			}
		}),
	)
	result, err := runner.Run(ctx, question)
	if err != nil {
		return err
	}
	printReport(result)
	return nil
}

func printReport(result *consult.Result) {
	fmt.Println()
	fmt.Printf("问题：%s\n", result.Question)
	fmt.Printf("用时：%s · 参与专家：%d 位\n\n", consult.FormatDuration(result.Duration), len(result.Experts))
	fmt.Println("专家团队：")
	for i, expert := range result.Experts {
		fmt.Printf("  %d. %s — %s\n", i+1, expert.Role, expert.Description)
	}
	fmt.Println()
	fmt.Println("各专家最终意见：")
	for _, expert := range result.Experts {
		if answer, ok := result.FinalAnswers[expert.Role]; ok {
			fmt.Printf("  [%s] %s\n", expert.Role, answer)
		}
	}
	fmt.Println()
	fmt.Println("最终结论：")
	fmt.Println(result.Decision)
}
