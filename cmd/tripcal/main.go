package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tripcal/internal/amap"
	"tripcal/internal/config"
	"tripcal/internal/ics"
	"tripcal/internal/itinerary"
	appLog "tripcal/internal/log"
	"tripcal/internal/planner"
	"tripcal/internal/web"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: tripcal [-config path] <command> [flags]

Commands:
  serve    run the HTTP planner and calendar export service
  convert  convert an itinerary text file into an .ics calendar
  inspect  list the events of an .ics file

`)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "./tripcal.yaml", "Path to config file")
	envFile := flag.String("env-file", ".env", "Optional .env file with API keys")
	flag.Usage = usage
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		appLog.Error("failed to load env file", err, "path", *envFile)
		os.Exit(1)
	}

	cmd, args := "serve", []string(nil)
	if flag.NArg() > 0 {
		cmd, args = flag.Arg(0), flag.Args()[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(*configPath, args)
	case "convert":
		err = runConvert(*configPath, args)
	case "inspect":
		err = runInspect(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		appLog.Error("tripcal "+cmd+" failed", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file. Only serve creates a default file on
// first run; one-shot commands leave the disk untouched.
func loadConfig(path string, createDefault bool) (*config.Config, error) {
	load := config.Read
	if createDefault {
		load = config.Load
	}
	conf, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	return conf, nil
}

func converterFor(conf *config.Config) ics.Converter {
	loc, err := conf.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", conf.Timezone)
	}
	return ics.Converter{Location: loc}
}

func runServe(configPath string, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := fs.String("listen", "", "HTTP listen address (overrides config if set)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	conf, err := loadConfig(configPath, true)
	if err != nil {
		return err
	}
	if *listen != "" {
		conf.Listen = *listen
	}

	appLog.Info("tripcal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"model", conf.LLM.Model,
		"llm_base_url", conf.LLM.BaseURL,
		"llm_key_set", conf.LLM.APIKey != "",
		"amap_key_set", conf.AMap.APIKey != "",
		"max_days", conf.Planner.MaxDays,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := web.NewServer(conf, newPlanner(conf), converterFor(conf))
	err = srv.Run(ctx)
	appLog.Info("tripcal exiting")
	return err
}

// newPlanner returns nil (as an interface) when either API key is missing,
// leaving calendar export available.
func newPlanner(conf *config.Config) web.ItineraryPlanner {
	chat := planner.NewOpenAIChat(conf.LLM.APIKey, conf.LLM.BaseURL)
	if chat == nil {
		appLog.Info("planner disabled: no LLM api key", "env", config.EnvOpenAIKey)
		return nil
	}
	search, err := amap.NewClient(amap.Options{
		APIKey:       conf.AMap.APIKey,
		BaseURL:      conf.AMap.BaseURL,
		PageSize:     conf.AMap.PageSize,
		DisableProxy: conf.AMap.DisableProxy,
	})
	if err != nil {
		appLog.Info("planner disabled: no map api key", "env", config.EnvAMapKey)
		return nil
	}
	return planner.New(chat, search, planner.Options{
		Model:   conf.LLM.Model,
		MaxDays: conf.Planner.MaxDays,
	})
}

func runConvert(configPath string, args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	in := fs.String("in", "-", "Itinerary text file (- for stdin)")
	out := fs.String("out", "", "Output .ics path (default stdout)")
	start := fs.String("start", "", "Start date YYYY-MM-DD (default today)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	conf, err := loadConfig(configPath, false)
	if err != nil {
		return err
	}
	conv := converterFor(conf)

	var anchor time.Time
	if *start != "" {
		anchor, err = time.ParseInLocation("2006-01-02", *start, conv.Location)
		if err != nil {
			return fmt.Errorf("invalid -start %q: %w", *start, err)
		}
	}

	plan, err := readInput(*in)
	if err != nil {
		return err
	}
	if err := itinerary.CheckText(plan, itinerary.MaxDayNumber); err != nil {
		return err
	}
	if err := itinerary.CheckRange(itinerary.Parse(plan), itinerary.MaxDayNumber); err != nil {
		return err
	}

	body := conv.Convert(plan, anchor)
	if *out == "" {
		_, err = os.Stdout.Write(body)
		return err
	}
	if err := os.WriteFile(*out, body, 0o644); err != nil {
		return err
	}
	appLog.Info("calendar written", "path", *out, "bytes", len(body))
	return nil
}

func runInspect(args []string) error {
	if len(args) != 1 {
		return errors.New("inspect needs exactly one .ics path")
	}
	body, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	events, err := ics.Parse(body)
	if err != nil {
		return err
	}
	for _, ev := range events {
		fmt.Printf("%s  %s\n", ev.Start.Format("2006-01-02"), ev.Summary)
	}
	return nil
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}
