// Command cyphersh is a local developer shell for cypherdb: run a script
// from a file or stdin, or drop into an interactive REPL, against either
// the in-memory store or a persistent badger-backed one.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"

	"github.com/wyrmfield/cypherdb/config"
	"github.com/wyrmfield/cypherdb/engine"
	"github.com/wyrmfield/cypherdb/graph"
	"github.com/wyrmfield/cypherdb/storage"
	"github.com/wyrmfield/cypherdb/storage/badgerstore"
	"github.com/wyrmfield/cypherdb/storage/memstore"
)

var version = "0.1.0"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "cyphersh",
		Short: "cyphersh runs Cypher scripts against a cypherdb store",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cyphersh v%s\n", version)
		},
	})

	runCmd := &cobra.Command{
		Use:   "run [file]",
		Short: "run a Cypher script from a file, or stdin if omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			var src []byte
			if len(args) == 1 {
				src, err = os.ReadFile(args[0])
			} else {
				src, err = readAll(os.Stdin)
			}
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Storage.QueryTimeout)
			defer cancel()

			sess := engine.NewSession(store, graph.Parameters{})
			start := time.Now()
			rows, err := sess.Run(ctx, string(src))
			elapsed := time.Since(start)
			if err != nil {
				return err
			}
			printRows(rows)
			fmt.Fprintf(os.Stderr, "%s rows in %s\n", humanize.Comma(int64(len(rows))), elapsed)
			return nil
		},
	}
	root.AddCommand(runCmd)

	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "interactive Cypher REPL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			return runShell(store, cfg)
		},
	}
	root.AddCommand(shellCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (storage.Engine, func(), error) {
	switch cfg.Storage.Backend {
	case "badger":
		logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags))
		if cfg.Logging.Level != "debug" {
			stdr.SetVerbosity(0)
		} else {
			stdr.SetVerbosity(1)
		}
		store, err := badgerstore.Open(cfg.Storage.DataDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		store := memstore.New()
		return store, func() {}, nil
	}
}

func runShell(store storage.Engine, cfg *config.Config) error {
	sess := engine.NewSession(store, graph.Parameters{})
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Println("cyphersh " + version + " -- enter a script terminated by ';', or 'exit'/Ctrl+D to quit")
	var buf strings.Builder
	for {
		if buf.Len() == 0 {
			fmt.Print("cypher> ")
		} else {
			fmt.Print("...... > ")
		}
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := scanner.Text()
		if buf.Len() == 0 && (strings.TrimSpace(line) == "exit" || strings.TrimSpace(line) == "quit") {
			return nil
		}
		buf.WriteString(line)
		buf.WriteString("\n")
		if !strings.Contains(line, ";") {
			continue
		}

		src := buf.String()
		buf.Reset()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Storage.QueryTimeout)
		start := time.Now()
		rows, err := sess.Run(ctx, src)
		elapsed := time.Since(start)
		cancel()
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		printRows(rows)
		fmt.Printf("%s rows in %s\n", humanize.Comma(int64(len(rows))), elapsed)
	}
}

func printRows(rows []engine.Row) {
	for _, row := range rows {
		fmt.Println(graph.Serialize(row))
	}
}

func readAll(f *os.File) ([]byte, error) {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024*4)
	var sb strings.Builder
	for scanner.Scan() {
		sb.WriteString(scanner.Text())
		sb.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}
