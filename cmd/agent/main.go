package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stepdrive/browserpilot/internal/agent"
	"github.com/stepdrive/browserpilot/internal/browser"
	"github.com/stepdrive/browserpilot/internal/config"
	"github.com/stepdrive/browserpilot/internal/llm"
	"github.com/stepdrive/browserpilot/internal/snapshot"
	"github.com/stepdrive/browserpilot/internal/tools"
)

type cliOptions struct {
	task       string
	configPath string
	maxActions int
	headless   bool
	headed     bool
	verbose    bool
}

func main() {
	_ = godotenv.Load()
	opts := parseFlags()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if opts.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if opts.maxActions > 0 {
		cfg.MaxActionsPerTask = opts.maxActions
	}
	if opts.headed {
		cfg.Headless = false
	} else if opts.headless {
		cfg.Headless = true
	}

	if opts.task == "" {
		task, cancelled, err := promptTask()
		if err != nil {
			log.Fatal().Err(err).Msg("prompt task failed")
		}
		if cancelled {
			fmt.Println("Cancelled.")
			return
		}
		opts.task = task
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := llm.NewAnthropic(cfg.APIKey, cfg.Model, log.With().Str("comp", "llm").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("llm init")
	}

	ctrl, err := browser.Start(ctx, cfg, log.With().Str("comp", "browser").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("browser init")
	}
	defer ctrl.Close()

	refs := snapshot.NewRefs()
	dispatcher := tools.NewDispatcher(
		ctrl,
		snapshot.NewReader(ctrl, refs),
		snapshot.NewFinder(ctrl, refs),
		cfg,
		log.With().Str("comp", "tools").Logger(),
	)
	controller := agent.NewController(client, dispatcher, cfg, log.With().Str("comp", "agent").Logger())

	fmt.Println("Starting task...")
	result, err := controller.ExecuteTask(ctx, opts.task)
	if err != nil {
		log.Error().Err(err).Msg("task finished with error")
		os.Exit(1)
	}
	fmt.Println(result)
}

func parseFlags() cliOptions {
	task := flag.String("task", "", "Task description")
	configPath := flag.String("config", "", "Path to YAML config file")
	maxActions := flag.Int("max-actions", 0, "Override action budget per task")
	headless := flag.Bool("headless", false, "Force headless mode")
	headed := flag.Bool("headed", false, "Force a visible browser window")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()
	return cliOptions{
		task:       strings.TrimSpace(*task),
		configPath: strings.TrimSpace(*configPath),
		maxActions: *maxActions,
		headless:   *headless,
		headed:     *headed,
		verbose:    *verbose,
	}
}

func promptTask() (string, bool, error) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Enter a task (leave empty to cancel): ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", false, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", true, nil
	}

	const maxTaskLength = 2000
	if len(line) > maxTaskLength {
		fmt.Printf("Task too long (max %d characters), truncated\n", maxTaskLength)
		line = line[:maxTaskLength]
	}

	var sanitized strings.Builder
	for _, r := range line {
		if r >= 32 || r == '\n' || r == '\r' || r == '\t' {
			sanitized.WriteRune(r)
		}
	}
	return sanitized.String(), false, nil
}
