// cmd/rvpf/main.go
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

const VERSION = "1.0.0"

// Command aliases mapping
var commandAliases = map[string]string{
	"r": "run",
	"m": "master",
	"o": "outstation",
	"s": "sniff",
	"a": "archive",
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}

	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	switch cmd {
	case "--help", "-h", "help":
		showUsage()
	case "--version", "-v", "version":
		showVersion()
	case "run":
		if err := runCommand(args[1:]); err != nil {
			fatal(err)
		}
	case "master":
		if err := masterCommand(args[1:]); err != nil {
			fatal(err)
		}
	case "outstation":
		if err := outstationCommand(args[1:]); err != nil {
			fatal(err)
		}
	case "sniff":
		if err := sniffCommand(args[1:]); err != nil {
			fatal(err)
		}
	case "archive":
		if err := archiveCommand(args[1:]); err != nil {
			fatal(err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		showUsage()
		os.Exit(1)
	}
}

func fatal(err error) {
	color.Red("Error: %v", err)
	os.Exit(1)
}

func showVersion() {
	fmt.Printf("rvpf %s\n", VERSION)
}

func showUsage() {
	fmt.Println(`rvpf - real-time values processing framework

Usage:
  rvpf <command> [arguments]

Commands:
  run <source> [inputs...]      compile and execute an RPN program
  master -config <file> ...     read points over DNP3
  outstation -config <file>     serve points over DNP3
  sniff <file.pcap|-i iface>    decode captured DNP3 traffic
  archive <db> [point-uuid]     inspect the point-value archive
  version                       print the version

Aliases: r=run m=master o=outstation s=sniff a=archive`)
}
