// cmd/rvpf/commands.go
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/pkg/errors"

	"rvpf/internal/archive"
	"rvpf/internal/config"
	"rvpf/internal/dnp3/master"
	"rvpf/internal/dnp3/outstation"
	"rvpf/internal/dnp3/sniff"
	"rvpf/internal/notify"
	"rvpf/internal/point"
	"rvpf/internal/rpn"
	"rvpf/internal/value"
)

// runCommand compiles and executes an RPN source against literal inputs.
func runCommand(args []string) error {
	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := flags.String("config", "", "configuration file")
	if err := flags.Parse(args); err != nil {
		return err
	}
	rest := flags.Args()
	if len(rest) == 0 {
		return errors.New("run: missing source")
	}

	params := map[string]string{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		params = loaded.Engine.Params()
	}
	engine, err := rpn.NewEngine(params)
	if err != nil {
		return err
	}
	program, err := engine.Compile(rest[0])
	if err != nil {
		return err
	}

	ctx := engine.NewContext()
	for _, input := range rest[1:] {
		ctx.Inputs = append(ctx.Inputs, &point.Value{
			Stamp: time.Now(),
			Value: literalValue(input),
		})
	}
	result, err := rpn.NewTask(ctx).Run(program)
	if err != nil {
		return err
	}
	if result == nil {
		color.Yellow("(empty stack)")
		return nil
	}
	fmt.Println(result)
	return nil
}

// literalValue parses a CLI input as long, double, boolean or string.
func literalValue(text string) value.Value {
	if i, err := strconv.ParseInt(text, 0, 64); err == nil {
		return value.Long(i)
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return value.Double(f)
	}
	if b, err := strconv.ParseBool(text); err == nil {
		return value.Bool(b)
	}
	return value.String(text)
}

// masterCommand connects to a configured origin and reads every point
// declared against it.
func masterCommand(args []string) error {
	flags := flag.NewFlagSet("master", flag.ContinueOnError)
	configPath := flags.String("config", "", "configuration file")
	originName := flags.String("origin", "", "origin to connect (default: first)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return errors.New("master: -config is required")
	}
	loaded, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	origin, err := pickOrigin(loaded, *originName)
	if err != nil {
		return err
	}
	connConfig, err := origin.ConnConfig()
	if err != nil {
		return err
	}
	connConfig.Master = true

	m := master.New(connConfig)
	defer m.Close()

	devices, err := origin.Devices()
	if err != nil {
		return err
	}
	if len(origin.TCPAddress) == 0 {
		return errors.Errorf("origin %q has no TCPAddress", origin.Name)
	}
	address := origin.TCPAddress[0]
	if !strings.Contains(address, ":") {
		port := origin.TCPPort
		if port == 0 {
			port = 20000
		}
		address = fmt.Sprintf("%s:%d", address, port)
	}

	for _, declared := range loaded.Points {
		if declared.Origin != origin.Name {
			continue
		}
		p, err := declared.Build()
		if err != nil {
			return err
		}
		remote, ok := devices[p.Device]
		if !ok {
			for _, addr := range devices {
				remote, ok = addr, true
				break
			}
		}
		if !ok {
			return errors.Errorf("origin %q declares no logical device", origin.Name)
		}
		assoc, err := m.Connect(address, connConfig.LocalAddress, remote)
		if err != nil {
			return err
		}
		pv, err := m.Read(assoc, p)
		if err != nil {
			color.Red("%s: %v", p, err)
			continue
		}
		fmt.Println(pv)
	}
	return nil
}

func pickOrigin(loaded *config.Config, name string) (*config.Origin, error) {
	if len(loaded.Origins) == 0 {
		return nil, errors.New("no origins configured")
	}
	if name == "" {
		return &loaded.Origins[0], nil
	}
	for i := range loaded.Origins {
		if loaded.Origins[i].Name == name {
			return &loaded.Origins[i], nil
		}
	}
	return nil, errors.Errorf("unknown origin %q", name)
}

// outstationCommand serves the configured points, optionally archiving
// inbound writes and streaming them to websocket subscribers.
func outstationCommand(args []string) error {
	flags := flag.NewFlagSet("outstation", flag.ContinueOnError)
	configPath := flags.String("config", "", "configuration file")
	listen := flags.String("listen", ":20000", "listen address")
	archivePath := flags.String("archive", "", "archive database path")
	notifyAddr := flags.String("notify", "", "websocket notifier address")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return errors.New("outstation: -config is required")
	}
	loaded, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	origin, err := pickOrigin(loaded, "")
	if err != nil {
		return err
	}
	connConfig, err := origin.ConnConfig()
	if err != nil {
		return err
	}
	connConfig.Master = false

	station := outstation.New(connConfig)
	defer station.Close()

	for _, declared := range loaded.Points {
		p, err := declared.Build()
		if err != nil {
			return err
		}
		station.AddPoint(p)
	}

	if *archivePath != "" {
		store, err := archive.Open(*archivePath)
		if err != nil {
			return err
		}
		defer store.Close()
		station.OnUpdate(func(pv *point.Value) {
			if err := store.Put(pv); err != nil {
				color.Red("archive: %v", err)
			}
		})
	}
	if *notifyAddr != "" {
		hub := notify.NewHub()
		defer hub.Close()
		station.OnUpdate(hub.Publish)
		go serveNotify(*notifyAddr, hub)
	}

	if err := station.Manager().Listen(*listen); err != nil {
		return err
	}
	color.Green("outstation %04X listening on %s", connConfig.LocalAddress, *listen)
	select {} // serve until interrupted
}

// archiveCommand prints the stored observations of a point, or the
// archive totals.
func archiveCommand(args []string) error {
	if len(args) == 0 {
		return errors.New("archive: missing database path")
	}
	store, err := archive.Open(args[0])
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 1 {
		count, err := store.Count()
		if err != nil {
			return err
		}
		info, _ := os.Stat(args[0])
		size := ""
		if info != nil {
			size = ", " + humanize.Bytes(uint64(info.Size()))
		}
		fmt.Printf("%s observations%s\n", humanize.Comma(count), size)
		return nil
	}

	id, err := archive.UUIDOf(args[1])
	if err != nil {
		return err
	}
	p := &point.Point{UUID: id}
	values, err := store.Query(p, time.Unix(0, 0), time.Now())
	if err != nil {
		return err
	}
	for _, pv := range values {
		fmt.Println(pv)
	}
	return nil
}

func serveNotify(address string, hub *notify.Hub) {
	if err := http.ListenAndServe(address, hub); err != nil {
		color.Red("notify: %v", err)
	}
}

// sniffCommand decodes DNP3 traffic from a capture file or interface.
func sniffCommand(args []string) error {
	flags := flag.NewFlagSet("sniff", flag.ContinueOnError)
	iface := flags.String("i", "", "capture live from interface")
	if err := flags.Parse(args); err != nil {
		return err
	}
	var sniffer *sniff.Sniffer
	var err error
	switch {
	case *iface != "":
		sniffer, err = sniff.OpenLive(*iface, os.Stdout)
	case flags.NArg() > 0:
		sniffer, err = sniff.OpenFile(flags.Arg(0), os.Stdout)
	default:
		return errors.New("sniff: need a capture file or -i interface")
	}
	if err != nil {
		return err
	}
	defer sniffer.Close()
	return sniffer.Run()
}
