package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"golang.org/x/term"

	"dabbertorres.dev/dbconsole"
)

func main() {
	log.SetFlags(0)

	var (
		configFile  string
		list        bool
		listDrivers bool
		historyFile string
	)
	flag.StringVar(&configFile, "cfg", dbconsole.DefaultConfigFile, "specify a config file to use")
	flag.BoolVar(&list, "list", false, "list available connections")
	flag.BoolVar(&listDrivers, "list-drivers", false, "list available SQL drivers")
	flag.StringVar(&historyFile, "history", "", "file queries are autosaved to (overrides editor.history_file)")
	flag.Parse()

	var cfg dbconsole.Config
	if err := dbconsole.LoadConfig(configFile, configFile == dbconsole.DefaultConfigFile, &cfg); err != nil {
		if errors.Is(err, dbconsole.ErrEmptyConfig) {
			fmt.Println(err)
			return
		}
		log.Fatal(err)
	}

	if historyFile != "" {
		cfg.Editor.HistoryFile = historyFile
	}

	switch {
	case list:
		names, _ := dbconsole.New(&cfg).ListConnections()
		for _, name := range names {
			fmt.Println(name)
		}

	case listDrivers:
		for _, v := range sql.Drivers() {
			fmt.Println(v)
		}

	default:
		connName := flag.Arg(0)
		if _, ok := cfg.Connections[connName]; !ok {
			log.Fatalf("'%s' is not a configured connection", connName)
		}

		if !term.IsTerminal(0) {
			log.Fatal("an active terminal is required")
		}

		history, err := openHistory(cfg.Editor.HistoryFile)
		if err != nil {
			log.Fatal(err)
		}
		defer history.Close()

		prevState, err := term.MakeRaw(0)
		if err != nil {
			log.Fatal("failed to enter terminal raw mode:", err)
		}
		defer term.Restore(0, prevState)

		terminal := term.NewTerminal(makeReadWriter(os.Stdin, os.Stdout), "> ")

		// just in case it is still set when we exit
		defer terminal.SetBracketedPasteMode(false)

		os.Stdin.Sync()

		db := dbconsole.New(&cfg)
		c := newCLI(terminal, db, cfg.Editor, history)
		terminal.AutoCompleteCallback = c.completer.complete
		c.run(connName)
	}
}

type combinedReaderWriter struct {
	io.Reader
	io.Writer
}

func makeReadWriter(r io.Reader, w io.Writer) *combinedReaderWriter {
	return &combinedReaderWriter{Reader: r, Writer: w}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// openHistory opens path for appending. An empty path discards everything.
func openHistory(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopWriteCloser{io.Discard}, nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("could not open history file: %w", err)
	}
	return f, nil
}
