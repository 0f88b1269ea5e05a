package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"arbiscout/internal"
	"arbiscout/internal/config"
	"arbiscout/internal/currency"
	"arbiscout/internal/orchestrator"
	"arbiscout/internal/pipeline"
	"arbiscout/internal/platform"
	"arbiscout/internal/report"
	"arbiscout/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	newOrchestrator := func() *orchestrator.Orchestrator {
		market := platform.NewMarketClient(cfg, log)
		supplier := platform.NewSupplierClient(cfg, log)
		rates := currency.NewStaticProvider(cfg)
		return orchestrator.New(cfg, db, market, supplier, rates, orchestrator.LogNotifier{Log: log}, log)
	}

	cmd := os.Args[1]
	switch cmd {
	case "submit":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		url := fs.String("url", "", "source product url")
		requester := fs.String("requester", "cli", "requester id")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*url) == "" {
			must(fmt.Errorf("--url is required"))
		}
		id, err := enqueue(db, strings.TrimSpace(*url), *requester)
		must(err)
		fmt.Printf("task submitted id=%s\n", id)
	case "worker":
		orch := newOrchestrator()
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		err := orch.RunWorker(ctx, db)
		orch.Close()
		must(err)
	case "status":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		taskID := fs.String("taskId", "", "task id")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*taskID) == "" {
			must(fmt.Errorf("--taskId is required"))
		}
		task, err := db.LoadTask(context.Background(), *taskID)
		must(err)
		printTask(task)
		history, err := db.History(context.Background(), *taskID)
		must(err)
		for _, change := range history {
			fmt.Printf("  %s  %s\n", change.At.Format(time.RFC3339), change.State)
		}
	case "cancel":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		taskID := fs.String("taskId", "", "task id")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*taskID) == "" {
			must(fmt.Errorf("--taskId is required"))
		}
		orch := newOrchestrator()
		must(orch.Cancel(context.Background(), *taskID))
		fmt.Printf("cancel requested id=%s\n", *taskID)
	case "list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		requester := fs.String("requester", "", "filter by requester id")
		_ = fs.Parse(os.Args[2:])
		tasks, err := db.ListUnfinished(context.Background())
		must(err)
		for _, task := range tasks {
			if *requester != "" && task.RequesterID != *requester {
				continue
			}
			fmt.Printf("%s  %-11s  %s\n", task.ID, task.State, task.Reference)
		}
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		taskID := fs.String("taskId", "", "task id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*taskID) == "" {
			must(fmt.Errorf("--taskId is required"))
		}
		task, err := db.LoadTask(context.Background(), *taskID)
		must(err)
		if task.State != internal.StateCompleted {
			must(fmt.Errorf("task %s is %s, only completed tasks can be exported", task.ID, task.State))
		}
		rep := pipeline.Assemble(task)
		path := outputPath(cfg, *out, task.ID)
		must(report.ExportXLSX(rep, path))
		fmt.Printf("exported %d entries to %s\n", len(rep.Entries), path)
	case "recost":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		taskID := fs.String("taskId", "", "task id")
		out := fs.String("out", "", "optional output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*taskID) == "" {
			must(fmt.Errorf("--taskId is required"))
		}
		orch := newOrchestrator()
		rep, err := orch.Recost(context.Background(), *taskID)
		must(err)
		fmt.Printf("recost done id=%s entries=%d\n", *taskID, len(rep.Entries))
		if strings.TrimSpace(*out) != "" {
			path := outputPath(cfg, *out, *taskID)
			must(report.ExportXLSX(rep, path))
			fmt.Printf("exported to %s\n", path)
		}
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		url := fs.String("url", "", "source product url")
		requester := fs.String("requester", "cli", "requester id")
		out := fs.String("out", "", "optional output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*url) == "" {
			must(fmt.Errorf("--url is required"))
		}
		orch := newOrchestrator()
		id, err := orch.Submit(context.Background(), strings.TrimSpace(*url), *requester)
		must(err)
		task, err := waitTerminal(db, id)
		must(err)
		printTask(task)
		if task.State == internal.StateCompleted && strings.TrimSpace(*out) != "" {
			rep := pipeline.Assemble(task)
			path := outputPath(cfg, *out, task.ID)
			must(report.ExportXLSX(rep, path))
			fmt.Printf("exported to %s\n", path)
		}
	default:
		usage()
		os.Exit(1)
	}
}

// enqueue persists a created task for the worker to pick up. Submission is
// rejected while another task for the same reference is unfinished.
func enqueue(db *storage.DB, reference, requester string) (string, error) {
	ctx := context.Background()
	unfinished, err := db.ListUnfinished(ctx)
	if err != nil {
		return "", err
	}
	for _, task := range unfinished {
		if task.Reference == reference {
			return "", fmt.Errorf("%w: task %s", internal.ErrTaskAlreadyRunning, task.ID)
		}
	}
	now := time.Now().UTC()
	task := internal.Task{
		ID:          uuid.NewString(),
		RequesterID: requester,
		Reference:   reference,
		State:       internal.StateCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.SaveTask(ctx, task); err != nil {
		return "", err
	}
	if err := db.AppendHistory(ctx, task.ID, task.State, now); err != nil {
		return "", err
	}
	return task.ID, nil
}

func waitTerminal(db *storage.DB, taskID string) (internal.Task, error) {
	for {
		task, err := db.LoadTask(context.Background(), taskID)
		if err != nil {
			return internal.Task{}, err
		}
		if task.State.Terminal() {
			return task, nil
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func printTask(task internal.Task) {
	fmt.Printf("task %s\n", task.ID)
	fmt.Printf("  reference: %s\n", task.Reference)
	fmt.Printf("  requester: %s\n", task.RequesterID)
	fmt.Printf("  state:     %s\n", task.State)
	if task.ErrKind != "" {
		fmt.Printf("  error:     %s (%s)\n", internal.UserSummary(task.ErrKind), task.ErrKind)
	}
	if task.Descriptor != nil {
		fmt.Printf("  product:   %s (%s %s)\n", task.Descriptor.Title, task.Descriptor.Price.Amount, task.Descriptor.Price.Currency)
	}
	fmt.Printf("  entries:   %d\n", len(task.Entries))
}

func outputPath(cfg config.Config, out, taskID string) string {
	if strings.TrimSpace(out) != "" {
		return out
	}
	return filepath.Join(cfg.OutputDir, fmt.Sprintf("report_%s.xlsx", taskID))
}

func usage() {
	fmt.Println("usage: arbiscout <command>")
	fmt.Println("commands:")
	fmt.Println("  submit --url=... [--requester=cli]")
	fmt.Println("  worker")
	fmt.Println("  status --taskId=...")
	fmt.Println("  cancel --taskId=...")
	fmt.Println("  list [--requester=...]")
	fmt.Println("  export:xlsx --taskId=... [--out=./out/report.xlsx]")
	fmt.Println("  recost --taskId=... [--out=./out/report.xlsx]")
	fmt.Println("  run --url=... [--requester=cli] [--out=./out/report.xlsx]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
