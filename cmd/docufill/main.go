package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/docufill/docufill/internal/assemble"
	"github.com/docufill/docufill/internal/config"
	"github.com/docufill/docufill/internal/dialogue"
	"github.com/docufill/docufill/internal/export"
	"github.com/docufill/docufill/internal/extract"
	"github.com/docufill/docufill/internal/ingest"
	"github.com/docufill/docufill/internal/llm"
	"github.com/docufill/docufill/internal/mcp"
	"github.com/docufill/docufill/internal/store"
	"github.com/docufill/docufill/internal/validate"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "extract":
		err = runExtract(os.Args[2:])
	case "watch":
		err = runWatch(os.Args[2:])
	case "chat":
		err = runChat(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "assemble":
		err = runAssemble(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "config":
		err = runConfig(os.Args[2:])
	case "mcp":
		err = runMCP(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("docufill %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`docufill - placeholder extraction and conversational slot-filling for document templates

Usage:
  docufill extract <path>...          Ingest templates and extract placeholders
  docufill watch <dir>                Watch an inbox directory and ingest new templates
  docufill chat <document-id>         Fill a document interactively (/skip to skip a slot)
  docufill status <document-id>       Show slot fill progress
  docufill assemble <document-id>     Produce the final document text
  docufill export <document-id>       Export the slot report as XLSX
  docufill config                     Show the resolved configuration
  docufill mcp                        Serve the engine over MCP stdio
  docufill version                    Print version

Common flags:
  --config <path>   Config file (default ~/.docufill/config.yaml)
  --db <path>       Database path (default ~/.docufill/docufill.db)
  --model <spec>    LLM for type inference, e.g. openai/gpt-4o-mini (default: off)`)
}

// cliFlags are the settings every subcommand understands.
type cliFlags struct {
	configPath string
	dbPath     string
	model      string
	inbox      string
	rest       []string
}

// parseCommon splits common flags from the positional arguments. Unknown
// flags are left in rest for the subcommand to handle.
func parseCommon(args []string) (cliFlags, error) {
	var f cliFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		takeValue := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", arg)
			}
			i++
			return args[i], nil
		}
		var err error
		switch arg {
		case "--config":
			f.configPath, err = takeValue()
		case "--db":
			f.dbPath, err = takeValue()
		case "--model":
			f.model, err = takeValue()
		case "--inbox":
			f.inbox, err = takeValue()
		default:
			f.rest = append(f.rest, arg)
		}
		if err != nil {
			return f, err
		}
	}
	return f, nil
}

func resolve(f cliFlags) (config.ResolvedConfig, error) {
	return config.ResolveConfig(config.ResolveOptions{
		ConfigPath: f.configPath,
		CLIDBPath:  f.dbPath,
		CLIModel:   f.model,
		CLIInbox:   f.inbox,
	})
}

func openStore(cfg config.ResolvedConfig) (store.Store, error) {
	return store.NewStore(store.Config{DBPath: cfg.DBPath.Value})
}

// buildExtractor assembles the extraction pipeline from the resolved config.
// When no model is configured the classifier runs on heuristics alone.
func buildExtractor(cfg config.ResolvedConfig) (*extract.Extractor, error) {
	exCfg := extract.ExtractorConfig{
		IdiomPatterns: cfg.IdiomPatterns,
	}
	if cfg.ContextWindow.Value != "" {
		n, err := strconv.Atoi(cfg.ContextWindow.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid context window %q: %w", cfg.ContextWindow.Value, err)
		}
		exCfg.ContextWindow = n
	}

	if spec := cfg.InferModel.Value; spec != "" {
		provCfg := llm.ParseSpec(spec)
		provCfg.APIKey = cfg.APIKeyForModel(spec).Value
		provider, err := llm.NewProvider(provCfg)
		if err != nil {
			return nil, fmt.Errorf("configuring inference model: %w", err)
		}
		exCfg.Inferencer = llm.NewInferencer(provider)
	}

	return extract.NewExtractor(exCfg)
}

func buildValidators(cfg config.ResolvedConfig) *validate.Set {
	var opts []validate.Option
	if len(cfg.DateLayouts) > 0 {
		opts = append(opts, validate.WithDateLayouts(cfg.DateLayouts))
	}
	return validate.NewSet(opts...)
}

func runExtract(args []string) error {
	f, err := parseCommon(args)
	if err != nil {
		return err
	}
	parallel := 0
	var paths []string
	for i := 0; i < len(f.rest); i++ {
		switch f.rest[i] {
		case "--parallel":
			if i+1 >= len(f.rest) {
				return fmt.Errorf("--parallel requires a value")
			}
			i++
			parallel, err = strconv.Atoi(f.rest[i])
			if err != nil {
				return fmt.Errorf("invalid --parallel value: %w", err)
			}
		default:
			if strings.HasPrefix(f.rest[i], "-") {
				return fmt.Errorf("unknown flag: %s", f.rest[i])
			}
			paths = append(paths, f.rest[i])
		}
	}
	if len(paths) == 0 {
		return fmt.Errorf("usage: docufill extract <path>... [--parallel N]")
	}

	cfg, err := resolve(f)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	extractor, err := buildExtractor(cfg)
	if err != nil {
		return err
	}
	ingestor := ingest.NewIngestor(st, extractor, nil)
	ctx := context.Background()

	if len(paths) == 1 {
		docID, slots, err := ingestor.IngestFile(ctx, paths[0])
		if err != nil {
			return err
		}
		fmt.Printf("Document %d: %d placeholder(s)\n", docID, len(slots))
		printSlots(slots)
		return nil
	}

	results := ingestor.IngestBatch(ctx, paths, parallel)
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("  %-40s FAILED: %v\n", r.Path, r.Err)
			continue
		}
		fmt.Printf("  %-40s document %d, %d slot(s)\n", r.Path, r.DocumentID, r.SlotCount)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

func printSlots(slots []extract.Slot) {
	for _, sl := range slots {
		value := sl.Value
		if value == "" {
			value = "-"
		}
		fmt.Printf("  [%2d] %-24s %-18s %-8s %s\n",
			sl.ID, sl.RawToken, sl.Type, sl.Status, value)
	}
}

func runWatch(args []string) error {
	f, err := parseCommon(args)
	if err != nil {
		return err
	}
	if f.inbox == "" && len(f.rest) == 1 {
		f.inbox = f.rest[0]
	}
	cfg, err := resolve(f)
	if err != nil {
		return err
	}
	if cfg.InboxDir.Value == "" {
		return fmt.Errorf("watch requires an inbox directory (--inbox, DOCUFILL_INBOX, or config)")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	extractor, err := buildExtractor(cfg)
	if err != nil {
		return err
	}
	ingestor := ingest.NewIngestor(st, extractor, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{cfg.InboxDir.Value},
		InitialScan: true,
		Debounce:    500 * time.Millisecond,
	}, log)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	log.Infow("watching inbox", "dir", cfg.InboxDir.Value)
	for {
		select {
		case <-ctx.Done():
			log.Infow("watcher stopped")
			return nil
		case path, ok := <-events:
			if !ok {
				return nil
			}
			if _, _, err := ingestor.IngestFile(ctx, path); err != nil {
				log.Errorw("ingest failed", "path", path, "error", err)
			}
		case err, ok := <-errs:
			if ok && err != nil {
				log.Errorw("watch error", "error", err)
			}
		}
	}
}

func runChat(args []string) error {
	f, err := parseCommon(args)
	if err != nil {
		return err
	}
	sessionID := ""
	var positional []string
	for i := 0; i < len(f.rest); i++ {
		switch f.rest[i] {
		case "--session":
			if i+1 >= len(f.rest) {
				return fmt.Errorf("--session requires a value")
			}
			i++
			sessionID = f.rest[i]
		default:
			if strings.HasPrefix(f.rest[i], "-") {
				return fmt.Errorf("unknown flag: %s", f.rest[i])
			}
			positional = append(positional, f.rest[i])
		}
	}
	if len(positional) != 1 && sessionID == "" {
		return fmt.Errorf("usage: docufill chat <document-id> [--session <id>]")
	}

	cfg, err := resolve(f)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	engine := dialogue.NewEngine(buildValidators(cfg))
	ctx := context.Background()

	var sess *dialogue.Session
	var slots []extract.Slot
	if sessionID != "" {
		sess, err = st.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		slots, err = st.GetSlots(ctx, sess.DocumentID)
		if err != nil {
			return err
		}
	} else {
		docID, err := strconv.ParseInt(positional[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid document id %q", positional[0])
		}
		if _, err := st.GetDocument(ctx, docID); err != nil {
			return err
		}
		slots, err = st.GetSlots(ctx, docID)
		if err != nil {
			return err
		}
		sess = dialogue.NewSession(uuid.NewString(), docID, time.Now().UTC())
	}

	reg := extract.NewRegistry(slots)

	save := func(before []extract.Slot) error {
		after := reg.Slots()
		for i, sl := range after {
			if i < len(before) && before[i].Status == sl.Status && before[i].Value == sl.Value {
				continue
			}
			if err := st.UpdateSlot(ctx, sess.DocumentID, sl); err != nil {
				return err
			}
		}
		return st.SaveSession(ctx, sess)
	}

	show := func(msgs []dialogue.Message) {
		for _, m := range msgs {
			fmt.Printf("docufill> %s\n", m.Text)
		}
	}

	if sess.State == dialogue.StateIdle {
		before := reg.Slots()
		msgs, err := engine.Start(sess, reg)
		if err != nil {
			return err
		}
		if err := save(before); err != nil {
			return err
		}
		fmt.Printf("Session %s\n", sess.ID)
		show(msgs)
	} else {
		fmt.Printf("Resuming session %s (%s)\n", sess.ID, sess.State)
		if n := len(sess.History); n > 0 {
			fmt.Printf("docufill> %s\n", sess.History[n-1].Text)
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	for sess.State == dialogue.StateAwaitingInput {
		fmt.Print("you> ")
		if !scanner.Scan() {
			fmt.Println()
			fmt.Printf("Paused. Resume with: docufill chat --session %s\n", sess.ID)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		before := reg.Slots()
		var msgs []dialogue.Message
		if line == "/skip" {
			msgs, err = engine.Skip(sess, reg)
		} else {
			msgs, err = engine.Receive(sess, reg, line)
		}
		if err != nil {
			return err
		}
		if err := save(before); err != nil {
			return err
		}
		show(msgs)
	}

	return nil
}

func runStatus(args []string) error {
	f, err := parseCommon(args)
	if err != nil {
		return err
	}
	if len(f.rest) != 1 {
		return fmt.Errorf("usage: docufill status <document-id>")
	}
	docID, err := strconv.ParseInt(f.rest[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid document id %q", f.rest[0])
	}

	cfg, err := resolve(f)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	doc, err := st.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	slots, err := st.GetSlots(ctx, docID)
	if err != nil {
		return err
	}

	reg := extract.NewRegistry(slots)
	resolved, total := reg.Progress()
	fmt.Printf("Document %d: %s\n", doc.ID, doc.Name)
	fmt.Printf("Progress: %d/%d (%.0f%%)\n", resolved, total, dialogue.Progress(reg)*100)
	printSlots(slots)

	sessions, err := st.ListSessions(ctx, docID)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		fmt.Printf("Session %s: %s (updated %s)\n",
			s.ID, s.State, s.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

func runAssemble(args []string) error {
	f, err := parseCommon(args)
	if err != nil {
		return err
	}
	outPath := ""
	strict := false
	var positional []string
	for i := 0; i < len(f.rest); i++ {
		switch f.rest[i] {
		case "-o", "--out":
			if i+1 >= len(f.rest) {
				return fmt.Errorf("%s requires a value", f.rest[i])
			}
			i++
			outPath = f.rest[i]
		case "--strict-skipped":
			strict = true
		default:
			if strings.HasPrefix(f.rest[i], "-") {
				return fmt.Errorf("unknown flag: %s", f.rest[i])
			}
			positional = append(positional, f.rest[i])
		}
	}
	if len(positional) != 1 {
		return fmt.Errorf("usage: docufill assemble <document-id> [-o <file>] [--strict-skipped]")
	}
	docID, err := strconv.ParseInt(positional[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid document id %q", positional[0])
	}

	cfg, err := resolve(f)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	doc, err := st.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	slots, err := st.GetSlots(ctx, docID)
	if err != nil {
		return err
	}

	policy := assemble.KeepToken
	if strict || cfg.SkipPolicy.Value == "strict" {
		policy = assemble.Strict
	}

	text, err := assemble.Assemble(assemble.Snapshot{
		DocumentID: docID,
		Text:       doc.Content,
		Registry:   extract.NewRegistry(slots),
	}, policy)
	if err != nil {
		return err
	}

	if outPath == "" {
		fmt.Print(text)
		return nil
	}
	if err := os.WriteFile(outPath, []byte(text), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	fmt.Printf("Wrote %s (%d bytes)\n", outPath, len(text))
	return nil
}

func runExport(args []string) error {
	f, err := parseCommon(args)
	if err != nil {
		return err
	}
	outPath := ""
	var positional []string
	for i := 0; i < len(f.rest); i++ {
		switch f.rest[i] {
		case "-o", "--out":
			if i+1 >= len(f.rest) {
				return fmt.Errorf("%s requires a value", f.rest[i])
			}
			i++
			outPath = f.rest[i]
		default:
			if strings.HasPrefix(f.rest[i], "-") {
				return fmt.Errorf("unknown flag: %s", f.rest[i])
			}
			positional = append(positional, f.rest[i])
		}
	}
	if len(positional) != 1 {
		return fmt.Errorf("usage: docufill export <document-id> [-o <file.xlsx>]")
	}
	docID, err := strconv.ParseInt(positional[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid document id %q", positional[0])
	}
	if outPath == "" {
		outPath = fmt.Sprintf("docufill-%d.xlsx", docID)
	}

	cfg, err := resolve(f)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	svc := export.NewService(st, nil)
	data, err := svc.ExportSlotsXLSX(context.Background(), docID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	fmt.Printf("Wrote %s (%d bytes)\n", outPath, len(data))
	return nil
}

func runConfig(args []string) error {
	f, err := parseCommon(args)
	if err != nil {
		return err
	}
	cfg, err := resolve(f)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runMCP(args []string) error {
	f, err := parseCommon(args)
	if err != nil {
		return err
	}
	cfg, err := resolve(f)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	extractor, err := buildExtractor(cfg)
	if err != nil {
		return err
	}

	s := mcp.NewServer(mcp.ServerConfig{
		Store:      st,
		Extractor:  extractor,
		Validators: buildValidators(cfg),
		Version:    version,
	})
	return mcpserver.ServeStdio(s)
}
