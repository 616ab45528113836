// Command radiopi serves the web control panel for a radio control program
// and offers the same operations on the command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sflip/radiopi/core/control"
	"github.com/sflip/radiopi/core/sqlite"
	"github.com/sflip/radiopi/internal/audit"
	"github.com/sflip/radiopi/internal/logging"
	"github.com/sflip/radiopi/internal/web"
)

const version = "1.0.0"

// envFileVar names the variable that overrides the dotenv file location.
const envFileVar = "RADIOPI_ENV_FILE"

// Globals are flags shared by every command.
type Globals struct {
	Program string        `help:"Path to the radio control program" default:"/usr/local/bin/radio" env:"RADIOPI_PROGRAM" type:"path"`
	Timeout time.Duration `help:"Deadline for one control program invocation" default:"10s" env:"RADIOPI_TIMEOUT"`

	Timer          bool     `help:"Offer the sleep timer" default:"true" negatable:"" env:"RADIOPI_TIMER"`
	AlarmDuration  bool     `help:"Offer the alarm duration field" default:"true" negatable:"" env:"RADIOPI_ALARM_DURATION"`
	VolumeControls bool     `help:"Offer volume controls" default:"true" negatable:"" env:"RADIOPI_VOLUME_CONTROLS"`
	VolumeStep     int      `help:"Volume change per step" default:"10" env:"RADIOPI_VOLUME_STEP"`
	HideVolumeOn   []string `help:"Host names whose page hides the volume controls" sep:"," env:"RADIOPI_HIDE_VOLUME_ON"`

	LogLevel  string `help:"Log level" default:"info" enum:"debug,info,warn,error" env:"RADIOPI_LOG_LEVEL"`
	LogFormat string `help:"Log format" default:"text" enum:"json,text" env:"RADIOPI_LOG_FORMAT"`
	LogFile   string `help:"Also write logs to this rotated file" type:"path" env:"RADIOPI_LOG_FILE"`

	AuditLog      string `help:"Invocation audit file (empty disables it)" default:"/tmp/radiopi_frontend.log" env:"RADIOPI_AUDIT_LOG"`
	AuditMaxSize  int    `help:"Rotate the audit file after this many megabytes" default:"10"`
	AuditBackups  int    `help:"Rotated audit files to keep" default:"3"`
	AuditMaxAge   int    `help:"Days to keep rotated audit files" default:"28"`
	AuditCompress bool   `help:"Gzip rotated audit files"`
	AuditDB       string `help:"SQLite database mirroring the audit log" type:"path" env:"RADIOPI_AUDIT_DB"`
}

// CLI defines the command-line interface for radiopi.
var CLI struct {
	Globals

	Serve    ServeCmd    `cmd:"" default:"withargs" help:"Start the web control panel"`
	Status   StatusCmd   `cmd:"" help:"Print the current status"`
	Stations StationsCmd `cmd:"" help:"List the available stations"`
	Do       DoCmd       `cmd:"" help:"Perform one control action"`
	History  HistoryCmd  `cmd:"" help:"Show recent invocations from the audit database"`
	Version  VersionCmd  `cmd:"" help:"Print version information"`
}

func (g *Globals) features() control.Features {
	return control.Features{
		Timer:             g.Timer,
		AlarmDuration:     g.AlarmDuration,
		VolumeControls:    g.VolumeControls,
		VolumeHiddenHosts: g.HideVolumeOn,
		VolumeStep:        g.VolumeStep,
	}
}

func (g *Globals) auditConfig() audit.Config {
	return audit.Config{
		Path:       g.AuditLog,
		MaxSizeMB:  g.AuditMaxSize,
		MaxBackups: g.AuditBackups,
		MaxAgeDays: g.AuditMaxAge,
		Compress:   g.AuditCompress,
		DBPath:     g.AuditDB,
	}
}

// setupLogging initializes the global logger on console, plus LogFile when
// set. The returned closer releases the log file.
func (g *Globals) setupLogging(console io.Writer) (io.Closer, error) {
	level, err := logging.ParseLevel(g.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(g.LogFormat)
	if err != nil {
		return nil, err
	}

	if g.LogFile == "" {
		logging.InitLoggerTo(console, level, format)
		return nopCloser{}, nil
	}
	file := &lumberjack.Logger{
		Filename:   g.LogFile,
		MaxSize:    g.AuditMaxSize,
		MaxBackups: g.AuditBackups,
		MaxAge:     g.AuditMaxAge,
		LocalTime:  true,
	}
	logging.InitLoggerTo(io.MultiWriter(console, file), level, format)
	return file, nil
}

// openInvoker opens the audit log and returns an invoker writing to it.
func (g *Globals) openInvoker() (*control.Invoker, func(), error) {
	auditLog, err := audit.Open(g.auditConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	inv := control.NewInvoker(g.Program, auditLog)
	if g.Timeout > 0 {
		inv.Timeout = g.Timeout
	}
	return inv, func() { auditLog.Close() }, nil
}

// ServeCmd starts the web control panel.
type ServeCmd struct {
	Port         int           `help:"HTTP server port" default:"8080" env:"RADIOPI_PORT"`
	LiveInterval time.Duration `help:"Push period of the live status socket" default:"5s"`
	ActionRate   int           `help:"Control actions per minute per client (0 disables the limit)" default:"30"`
	ActionBurst  int           `help:"Burst of control actions per client" default:"5"`
	TrustProxy   bool          `help:"Take the client address from X-Forwarded-For"`
	TLSCert      string        `name:"tls-cert" help:"TLS certificate file" type:"path"`
	TLSKey       string        `name:"tls-key" help:"TLS private key file" type:"path"`
}

func (c *ServeCmd) config(g *Globals) web.Config {
	return web.Config{
		Port:                c.Port,
		Program:             g.Program,
		Timeout:             g.Timeout,
		Features:            g.features(),
		Audit:               g.auditConfig(),
		LiveInterval:        c.LiveInterval,
		ActionRatePerMinute: c.ActionRate,
		ActionBurst:         c.ActionBurst,
		TrustProxyHeaders:   c.TrustProxy,
		TLS: web.TLSConfig{
			Enabled:  c.TLSCert != "" || c.TLSKey != "",
			CertFile: c.TLSCert,
			KeyFile:  c.TLSKey,
		},
	}
}

func (c *ServeCmd) Run(g *Globals) error {
	closer, err := g.setupLogging(os.Stdout)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return web.Start(ctx, c.config(g))
}

// StatusCmd prints the parsed status of the control program.
type StatusCmd struct {
	JSON bool `help:"Print the status as JSON"`
}

func (c *StatusCmd) Run(g *Globals) error {
	closer, err := g.setupLogging(os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	inv, done, err := g.openInvoker()
	if err != nil {
		return err
	}
	defer done()

	snap := control.TakeSnapshot(context.Background(), inv, false)
	if c.JSON {
		doc := map[string]any{
			"status":         snap.Status,
			"default_module": control.DefaultModule(snap.Status),
			"playing":        snap.Status.Playing(),
			"errors":         nonNil(snap.Problems),
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return err
		}
	} else {
		printLines(os.Stdout, snap.Status.Lines())
		fmt.Printf("Default module: %s\n", control.DefaultModule(snap.Status))
	}
	return problemsError(snap.Problems)
}

// StationsCmd prints the station list.
type StationsCmd struct{}

func (c *StationsCmd) Run(g *Globals) error {
	closer, err := g.setupLogging(os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	inv, done, err := g.openInvoker()
	if err != nil {
		return err
	}
	defer done()

	result, err := inv.Invoke(context.Background(), control.CmdList)
	if err != nil {
		return err
	}
	if !result.Succeeded() {
		printLines(os.Stderr, result.Lines)
		return result.Err()
	}
	printLines(os.Stdout, control.ParseStations(result))
	return nil
}

// DoCmd performs one control action, validated the same way as the web form.
type DoCmd struct {
	Action        string `arg:"" help:"Action to perform" enum:"start_playback,stop_playback,volume_down,volume_up,enable_timer,disable_timer,enable_alarm,disable_alarm"`
	Station       string `help:"Station for start_playback"`
	TimerDuration string `help:"Minutes for enable_timer"`
	AlarmTime     string `help:"HH:MM for enable_alarm"`
	AlarmDuration string `name:"alarm-minutes" help:"Minutes for enable_alarm"`
}

// form maps the flags onto the fields the web form submits.
func (c *DoCmd) form() url.Values {
	v := url.Values{}
	v.Set(control.FieldAction, c.Action)
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set(control.FieldStation, c.Station)
	set(control.FieldTimerDuration, c.TimerDuration)
	set(control.FieldAlarmTime, c.AlarmTime)
	set(control.FieldAlarmDuration, c.AlarmDuration)
	return v
}

func (c *DoCmd) Run(g *Globals) error {
	closer, err := g.setupLogging(os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	inv, done, err := g.openInvoker()
	if err != nil {
		return err
	}
	defer done()

	outcome := control.NewDispatcher(inv, g.features()).Dispatch(context.Background(), c.form())
	if outcome.Err != nil {
		printLines(os.Stderr, outcome.Messages())
		return fmt.Errorf("%s failed", c.Action)
	}
	printLines(os.Stdout, outcome.Result.Lines)
	return nil
}

// HistoryCmd prints the most recent audit entries.
type HistoryCmd struct {
	Limit int  `help:"Number of entries to show" default:"20"`
	JSON  bool `help:"Print entries as JSON lines"`
}

func (c *HistoryCmd) Run(g *Globals) error {
	if g.AuditDB == "" {
		return fmt.Errorf("history needs --audit-db")
	}
	entries, err := audit.ReadHistory(context.Background(), g.AuditDB, c.Limit)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for _, e := range entries {
		if c.JSON {
			if err := enc.Encode(e); err != nil {
				return err
			}
			continue
		}
		fmt.Print(e.Format())
	}
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("radiopi version %s\n", version)
	fmt.Printf("sqlite: %s\n", sqlite.GetInfo())
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func printLines(w io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

func problemsError(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	printLines(os.Stderr, problems)
	return fmt.Errorf("%d problem(s) querying status", len(problems))
}

func nonNil(lines []string) []string {
	if lines == nil {
		return []string{}
	}
	return lines
}

// loadEnv reads the dotenv file, if any, into the process environment so
// kong can pick the values up through env tags.
func loadEnv() error {
	path := os.Getenv(envFileVar)
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func main() {
	if err := loadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx := kong.Parse(&CLI,
		kong.Name("radiopi"),
		kong.Description("Web control panel for a radio control program"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&CLI.Globals)
	ctx.FatalIfErrorf(err)
}
