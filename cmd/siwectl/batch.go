package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"example.com/siwegate/internal/common"
	"example.com/siwegate/internal/rules"
)

// batchExtensions are the message file extensions picked up from a directory.
var batchExtensions = map[string]bool{".txt": true, ".siwe": true, ".msg": true}

type batchOptions struct {
	profile     string
	autoFix     bool
	outDir      string
	ndjson      string
	metricsOut  string
	progress    bool
	concurrency int
	maxSize     int
}

// batchItem is one message of a batch; NDJSON input lines use the same shape.
type batchItem struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func newBatchCmd(a *app) *cobra.Command {
	opts := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "batch <dir|file.ndjson>",
		Short: "Validate many messages concurrently",
		Long: "Validate every message file in a directory (.txt, .siwe, .msg) or every {\"id\",\"message\"} line " +
			"of an NDJSON file. Results keep input order.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, a, opts, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.profile, "profile", "p", "", "validation profile")
	f.BoolVar(&opts.autoFix, "autofix", false, "compute repaired messages")
	f.StringVar(&opts.outDir, "out-dir", "", "write repaired messages to this directory (implies --autofix)")
	f.StringVar(&opts.ndjson, "ndjson", "", "write every diagnostic as NDJSON to this file")
	f.StringVar(&opts.metricsOut, "metrics-out", "", "write Prometheus metrics in text format to this file")
	f.BoolVar(&opts.progress, "progress", false, "print progress to stderr")
	f.IntVar(&opts.concurrency, "concurrency", 8, "maximum concurrent validations")
	f.IntVar(&opts.maxSize, "max-size", 0, "maximum message size in bytes")
	return cmd
}

func runBatch(cmd *cobra.Command, a *app, opts *batchOptions, input string) error {
	items, err := loadBatch(input)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("%s: no messages found", input)
	}
	cfg, err := a.config(opts.profile, opts.autoFix || opts.outDir != "", opts.maxSize)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := common.NewMetrics(reg)
	metrics.SetTotalMessages(int64(len(items)))
	eng := a.engine(rules.WithMetrics(metrics), rules.WithBatchConcurrency(opts.concurrency))

	messages := make([]string, len(items))
	for i, it := range items {
		messages[i] = it.Message
	}

	metrics.Start()
	stop := func() {}
	if opts.progress {
		stop = common.StartProgressPrinter(cmd.ErrOrStderr(), metrics, 200*time.Millisecond)
	}
	results, err := eng.BatchValidate(cmd.Context(), messages, cfg)
	stop()
	metrics.Stop()
	if err != nil {
		return err
	}

	if opts.ndjson != "" {
		if err := writeNDJSON(opts.ndjson, results); err != nil {
			return fmt.Errorf("write ndjson: %w", err)
		}
	}
	if opts.outDir != "" {
		if err := writeFixed(opts.outDir, items, results); err != nil {
			return err
		}
	}
	if opts.metricsOut != "" {
		if err := prometheus.WriteToTextfile(opts.metricsOut, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	invalid := printBatchTable(a.out, items, results)
	snap := metrics.Snapshot()
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d messages, %d invalid, %d fixes, %s in %s\n",
		snap.Messages, snap.Invalid, snap.Fixes, common.FormatBytes(snap.Bytes), snap.Duration.Round(time.Millisecond))
	a.logger.Info("batch complete",
		zap.String("input", input),
		zap.Int64("messages", snap.Messages),
		zap.Int64("invalid", snap.Invalid),
		zap.Duration("duration", snap.Duration))
	if invalid > 0 {
		return errInvalid
	}
	return nil
}

func loadBatch(input string) ([]batchItem, error) {
	st, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return loadNDJSON(input)
	}
	entries, err := os.ReadDir(input)
	if err != nil {
		return nil, err
	}
	var items []batchItem
	for _, e := range entries {
		if e.IsDir() || !batchExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		msg, _, err := common.ReadMessageFile(filepath.Join(input, e.Name()), 0)
		if err != nil {
			return nil, err
		}
		items = append(items, batchItem{ID: e.Name(), Message: msg})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func loadNDJSON(path string) ([]batchItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var items []batchItem
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var it batchItem
		if err := json.Unmarshal([]byte(text), &it); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if it.ID == "" {
			it.ID = fmt.Sprintf("#%d", line)
		}
		items = append(items, it)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.New(path + ": no NDJSON records")
	}
	return items, nil
}

func writeNDJSON(path string, results []rules.ValidationResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := rules.WriteDiagnosticsNDJSON(f, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeFixed(dir string, items []batchItem, results []rules.ValidationResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i, res := range results {
		if res.FixedMessage == "" {
			continue
		}
		name := strings.TrimPrefix(items[i].ID, "#")
		if filepath.Ext(name) == "" {
			name += ".txt"
		}
		if err := os.WriteFile(filepath.Join(dir, filepath.Base(name)), []byte(res.FixedMessage), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func printBatchTable(p *printer, items []batchItem, results []rules.ValidationResult) int {
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MESSAGE\tRESULT\tERRORS\tWARNINGS\tSUGGESTIONS\tFIXES")
	invalid := 0
	for i, res := range results {
		verdict := p.cs.Pass.Sprint("PASS")
		if !res.IsValid {
			verdict = p.cs.Fail.Sprint("FAIL")
			invalid++
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", items[i].ID, verdict,
			len(res.Errors), len(res.Warnings), len(res.Suggestions), len(res.AppliedFixes))
	}
	tw.Flush()
	return invalid
}
