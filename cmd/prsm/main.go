// Command prsm is the interactive shell for a prismdb database: execute
// SQL against an in-memory or file-backed database and print columnar
// results.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/turingworks/prismdb"
)

var (
	flagConfig  string
	flagThreads int
	flagCommand string
)

func newLogger() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if env := os.Getenv("PRISMDB_LOG_LEVEL"); env != "" {
		if parsed, err := zapcore.ParseLevel(env); err == nil {
			level = parsed
		}
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

func main() {
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// Container-aware GOMAXPROCS drives the default worker count.
	if _, err := maxprocs.Set(maxprocs.Logger(zap.S().Debugf)); err != nil {
		zap.S().Warnw("maxprocs setup failed", "error", err)
	}

	root := &cobra.Command{
		Use:   "prsm [database-file]",
		Short: "prismdb interactive SQL shell",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runShell,
	}
	root.Flags().StringVarP(&flagConfig, "config", "c", "", "path to a TOML config file")
	root.Flags().IntVarP(&flagThreads, "threads", "t", 0, "worker thread count (default: logical cores)")
	root.Flags().StringVarP(&flagCommand, "command", "e", "", "execute one statement and exit")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runShell(cmd *cobra.Command, args []string) error {
	cfg := prismdb.DefaultConfig()
	if flagConfig != "" {
		loaded, err := prismdb.LoadConfig(flagConfig)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if flagThreads > 0 {
		cfg.Execution.Threads = flagThreads
	}

	var db *prismdb.Database
	var err error
	if len(args) == 1 {
		db, err = prismdb.Connect(args[0], cfg)
	} else {
		db, err = prismdb.ConnectInMemory(cfg)
	}
	if err != nil {
		return err
	}
	conn := db.Connect()

	if flagCommand != "" {
		return runStatement(conn, flagCommand)
	}

	fmt.Println("prismdb shell; end statements with ';', \\q quits")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	var buf strings.Builder
	fmt.Print("prsm> ")
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if buf.Len() == 0 && (trimmed == "\\q" || trimmed == "exit" || trimmed == "quit") {
			return nil
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			stmt := buf.String()
			buf.Reset()
			if err := runStatement(conn, stmt); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			fmt.Print("prsm> ")
			continue
		}
		if buf.Len() > 0 {
			fmt.Print("  ... ")
		} else {
			fmt.Print("prsm> ")
		}
	}
	return scanner.Err()
}

func runStatement(conn *prismdb.Connection, stmt string) error {
	stream, err := conn.Execute(stmt)
	if err != nil {
		return err
	}
	defer stream.Close()
	cols := stream.Columns()
	if len(cols) > 0 {
		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = c.Name
		}
		fmt.Println(strings.Join(names, " | "))
		fmt.Println(strings.Repeat("-", len(strings.Join(names, " | "))))
	}
	rows := 0
	for {
		chunk, err := stream.Next()
		if err != nil {
			return err
		}
		if chunk == nil {
			break
		}
		for i := 0; i < chunk.Cardinality(); i++ {
			row, err := chunk.Row(i)
			if err != nil {
				return err
			}
			parts := make([]string, len(row))
			for j, v := range row {
				parts[j] = v.String()
			}
			fmt.Println(strings.Join(parts, " | "))
			rows++
		}
	}
	if len(cols) > 0 {
		fmt.Printf("(%d rows)\n", rows)
	}
	return nil
}
