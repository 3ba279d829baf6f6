package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"garnet/internal/db"
)

var commands = []string{"put", "get", "delete", "seed", "flush", "stats", "dump", "inspect", "help", "exit", "quit"}

func main() {
	dataDir := flag.String("data", "", "data directory (overrides config)")
	configPath := flag.String("config", "", "YAML config file")
	verbose := flag.Bool("v", false, "log to stderr")
	flag.Parse()

	opts := db.DefaultOptions
	if *configPath != "" {
		var err error
		opts, err = db.LoadOptions(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	dbOpts := []db.Option{
		db.WithDBPath(opts.DBPath),
		db.WithMemtableFlushBytes(opts.MemtableFlushBytes),
		db.WithMaxSSTableLevel(opts.MaxSSTableLevel),
		db.WithMaxLevelTables(opts.MaxLevelTables),
		db.WithMaxBatchSize(opts.MaxBatchSize),
		db.WithCompactionInterval(opts.CompactionInterval),
		db.WithLogger(logger),
	}
	if *dataDir != "" {
		dbOpts = append(dbOpts, db.WithDBPath(*dataDir))
	}

	store, err := db.Open(dbOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	fmt.Println("gdb - garnet database")
	fmt.Printf("data: %s\n", store.Paths().Root())
	fmt.Println("type 'help' for commands")

	repl(store)
}

func repl(store *db.DB) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		var matches []string
		for _, cmd := range commands {
			if strings.HasPrefix(cmd, strings.ToLower(prefix)) {
				matches = append(matches, cmd)
			}
		}
		return matches
	})

	histFile := historyPath()
	if f, err := os.Open(histFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(histFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	for {
		input, err := line.Prompt("> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "input error: %v\n", err)
			return
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if done := runCommand(store, strings.Fields(input)); done {
			return
		}
	}
}

func runCommand(store *db.DB, parts []string) bool {
	switch strings.ToLower(parts[0]) {
	case "put":
		if len(parts) != 3 {
			fmt.Println("usage: put <key> <value>")
			return false
		}
		if err := store.Put([]byte(parts[1]), []byte(parts[2])); err != nil {
			fmt.Printf("put error: %v\n", err)
			return false
		}
		fmt.Println("ok")

	case "get":
		if len(parts) != 2 {
			fmt.Println("usage: get <key>")
			return false
		}
		value, err := store.Get([]byte(parts[1]))
		if errors.Is(err, db.ErrNotFound) {
			fmt.Println("(not found)")
			return false
		}
		if err != nil {
			fmt.Printf("get error: %v\n", err)
			return false
		}
		fmt.Printf("%s\n", string(value))

	case "delete":
		if len(parts) != 2 {
			fmt.Println("usage: delete <key>")
			return false
		}
		if err := store.Delete([]byte(parts[1])); err != nil {
			fmt.Printf("delete error: %v\n", err)
			return false
		}
		fmt.Println("ok")

	case "seed":
		if len(parts) != 2 {
			fmt.Println("usage: seed <x>")
			return false
		}
		x, err := strconv.Atoi(parts[1])
		if err != nil || x < 1 {
			fmt.Println("seed: x must be a positive integer")
			return false
		}
		seed(store, x)

	case "flush":
		if err := store.Flush(); err != nil {
			fmt.Printf("flush error: %v\n", err)
			return false
		}
		fmt.Println("ok")

	case "stats":
		printStats(store)

	case "dump":
		if len(parts) != 2 {
			fmt.Println("usage: dump <mem|file.log|file.sst>")
			return false
		}
		if parts[1] == "mem" {
			dumpMemtable(store)
		} else {
			dumpFile(parts[1])
		}

	case "inspect":
		if len(parts) != 2 {
			fmt.Println("usage: inspect <file.log|file.sst>")
			return false
		}
		inspectFile(parts[1])

	case "help":
		fmt.Println("commands:")
		fmt.Println("  put <key> <value>   store a value")
		fmt.Println("  get <key>           look up a value")
		fmt.Println("  delete <key>        remove a key")
		fmt.Println("  seed <x>            insert x rounds of sample data")
		fmt.Println("  flush               force the memtable to disk")
		fmt.Println("  stats               show the level tree")
		fmt.Println("  dump <mem|file>     print every entry")
		fmt.Println("  inspect <file>      print file metadata")
		fmt.Println("  exit                quit")

	case "exit", "quit":
		return true

	default:
		fmt.Println("unknown command (try 'help')")
	}
	return false
}

func printStats(store *db.DB) {
	v := store.Manifest().Current()
	fmt.Printf("memtable: %d entries (%d bytes)\n", store.Memtable().Len(), store.Memtable().ApproxSize())
	fmt.Printf("wal: %d.log\n", v.CurrentWAL)
	for level, tables := range v.Levels {
		if len(tables) == 0 {
			continue
		}
		fmt.Printf("L%d: %d tables\n", level, len(tables))
		for _, fm := range tables {
			fmt.Printf("  %d.sst  entries=%d size=%d range=[%q, %q]\n",
				fm.FileNo, fm.EntryCount, fm.Size, string(fm.SmallestKey), string(fm.LargestKey))
		}
	}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gdb_history"
	}
	return filepath.Join(home, ".gdb_history")
}
