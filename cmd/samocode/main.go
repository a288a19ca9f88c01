// Package main provides samocode - a phase-driven workflow orchestrator for
// coding agent sessions.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/samocode/samocode/pkg/config"
	"github.com/samocode/samocode/pkg/executor"
	"github.com/samocode/samocode/pkg/gitinfo"
	"github.com/samocode/samocode/pkg/notify"
	"github.com/samocode/samocode/pkg/phase"
	"github.com/samocode/samocode/pkg/processor"
	"github.com/samocode/samocode/pkg/progress"
	"github.com/samocode/samocode/pkg/render"
	"github.com/samocode/samocode/pkg/session"
	sig "github.com/samocode/samocode/pkg/signal"
	"github.com/samocode/samocode/pkg/web"
)

// opts holds all command-line options.
type opts struct {
	Config  string `short:"c" long:"config" default:".samocode" description:"path to project config file"`
	Repo    string `long:"repo" description:"base git repository (overrides config REPO)"`
	Dive    string `long:"dive" description:"dive topic to record on a new session"`
	Task    string `long:"task" description:"task definition to record on a new session"`
	Timeout int    `short:"t" long:"timeout" description:"per-invocation timeout in seconds (overrides env)"`
	Graph   string `short:"g" long:"graph" description:"custom phase graph YAML file"`
	Prompt  string `long:"prompt" description:"workflow prompt file for graph states without an agent"`
	DryRun  bool   `long:"dry-run" description:"print the resolved execution plan and exit"`
	Show    bool   `long:"show" description:"render session status and exit"`
	NoColor bool   `long:"no-color" description:"disable color output"`
	Serve   bool   `short:"s" long:"serve" description:"start web live view"`
	Port    int    `short:"p" long:"port" default:"8080" description:"web live view port"`
	Version bool   `short:"v" long:"version" description:"print version and exit"`

	SessionArg string `positional-arg-name:"session" description:"session name or path"`
}

var revision = "unknown"

func main() {
	fmt.Printf("samocode %s\n", revision)

	var o opts
	parser := flags.NewParser(&o, flags.Default)
	parser.Usage = "[OPTIONS] session"

	args, err := parser.Parse()
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if o.Version {
		os.Exit(0)
	}

	if len(args) > 0 {
		o.SessionArg = args[0]
	}
	if o.SessionArg == "" {
		fmt.Fprintln(os.Stderr, "error: session name or path is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, o); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o opts) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	graph, err := loadGraph(o)
	if err != nil {
		return err
	}

	sess, err := resolveSession(o, cfg)
	if err != nil {
		return err
	}

	if o.Show {
		return showSession(sess, graph, o.NoColor)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	if cfg.Project.Repo != "" {
		if repoErr := gitinfo.ValidateRepo(cfg.Project.Repo); repoErr != nil {
			return repoErr
		}
	}

	workflowPrompt, err := loadWorkflowPrompt(o)
	if err != nil {
		return err
	}

	if o.DryRun {
		printDryRun(cfg, graph, sess)
		return nil
	}

	if _, lookErr := exec.LookPath(cfg.Runtime.ClaudePath); lookErr != nil {
		return fmt.Errorf("%s not found in PATH", cfg.Runtime.ClaudePath)
	}

	branch := ""
	if cfg.Project.Repo != "" {
		branch = gitinfo.BranchHint(cfg.Project.Repo)
	}

	log, err := progress.NewLogger(progress.Config{
		SessionPath: sess.Path,
		SessionName: sess.DisplayName,
		Branch:      branch,
		NoColor:     o.NoColor,
	})
	if err != nil {
		return fmt.Errorf("create progress logger: %w", err)
	}
	defer log.Close() //nolint:errcheck // best-effort flush on exit

	notifier, err := notify.New(cfg.Runtime.Notify, log)
	if err != nil {
		return fmt.Errorf("setup notifications: %w", err)
	}

	agentExec := &executor.Executor{
		Graph:          graph,
		Config:         cfg,
		Session:        sess,
		WorkflowPrompt: workflowPrompt,
		Log:            log,
	}

	if o.Serve {
		srv := web.NewServer(web.ServerConfig{Port: o.Port}, sess, graph)
		watcher := web.NewWatcher(sess, srv)
		go func() {
			if srvErr := srv.Start(ctx); srvErr != nil {
				fmt.Fprintf(os.Stderr, "web server error: %v\n", srvErr)
			}
		}()
		go func() {
			if wErr := watcher.Run(ctx); wErr != nil {
				fmt.Fprintf(os.Stderr, "session watcher error: %v\n", wErr)
			}
		}()
		agentExec.OnLine = srv.PublishLine
		log.Print("web live view: http://localhost:%d", o.Port)
	}

	log.Print("session: %s (%s)", sess.DisplayName, sess.Path)
	if branch != "" {
		log.Print("branch: %s", branch)
	}
	log.Print("run log: %s", log.Path())

	runner := &processor.Runner{
		Graph:    graph,
		Session:  sess,
		Exec:     agentExec,
		Notifier: notifier,
		Log:      log,
	}

	outcome, err := runner.RunWithOptions(ctx, processor.Options{
		InitialDive: o.Dive,
		InitialTask: o.Task,
	})
	if err != nil {
		return err
	}

	log.Print("stopped after %d iterations (%s)", outcome.Iterations, log.Elapsed())
	if outcome.Status != sig.Done {
		return fmt.Errorf("workflow stopped with status %s", outcome.Status)
	}
	return nil
}

func loadConfig(o opts) (config.Config, error) {
	project, err := config.LoadProject(o.Config)
	if err != nil {
		return config.Config{}, err
	}
	cfg := config.Config{Project: project, Runtime: config.LoadRuntime()}
	if o.Repo != "" {
		cfg.Project.Repo = o.Repo
	}
	if o.Timeout > 0 {
		cfg.Runtime.TimeoutSec = o.Timeout
	}
	return cfg, nil
}

func loadGraph(o opts) (*phase.Graph, error) {
	if o.Graph == "" {
		return phase.NewGraph(), nil
	}
	graph, err := phase.LoadGraph(o.Graph)
	if err != nil {
		return nil, fmt.Errorf("load phase graph: %w", err)
	}
	return graph, nil
}

func resolveSession(o opts, cfg config.Config) (session.Session, error) {
	sess, err := session.Resolve(o.SessionArg, cfg.Project.Sessions)
	if err != nil {
		return session.Session{}, err
	}
	if err := session.ValidateStructure(sess); err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

// loadWorkflowPrompt reads the fallback prompt used for custom graph states
// without a dedicated agent.
func loadWorkflowPrompt(o opts) (string, error) {
	if o.Prompt == "" {
		return "", nil
	}
	data, err := os.ReadFile(o.Prompt) //nolint:gosec // path comes from CLI flag
	if err != nil {
		return "", fmt.Errorf("read workflow prompt: %w", err)
	}
	return string(data), nil
}

func showSession(sess session.Session, graph *phase.Graph, noColor bool) error {
	out, err := render.Markdown(render.SessionStatus(sess, graph), noColor)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func printDryRun(cfg config.Config, graph *phase.Graph, sess session.Session) {
	fmt.Println("dry run, nothing will be executed")
	fmt.Printf("  session:   %s (%s)\n", sess.DisplayName, sess.Path)
	fmt.Printf("  agent CLI: %s (model %s, max turns %d)\n", cfg.Runtime.ClaudePath, cfg.Runtime.Model, cfg.Runtime.MaxTurns)
	fmt.Printf("  timeout:   %ds, retries %d with %ds delay\n", cfg.Runtime.TimeoutSec, cfg.Runtime.MaxRetries, cfg.Runtime.RetryDelaySec)
	fmt.Printf("  phases:    %s\n", strings.Join(graph.Phases(), ", "))
	if cfg.Project.Repo != "" {
		fmt.Printf("  repo:      %s\n", cfg.Project.Repo)
		fmt.Printf("  worktrees: %s\n", cfg.Project.Worktrees)
	} else {
		fmt.Printf("  mode:      standalone (no base repo)\n")
	}
	if current, err := session.Phase(sess); err == nil && current != "" {
		fmt.Printf("  phase:     %s\n", current)
	} else {
		fmt.Printf("  phase:     (new session, starts at %s)\n", graph.InitialPhase())
	}
	if len(cfg.Runtime.Notify.Channels) > 0 {
		fmt.Printf("  notify:    %s\n", strings.Join(cfg.Runtime.Notify.Channels, ", "))
	}
}
