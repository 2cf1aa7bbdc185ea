package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"hassrest/internal/config"
	"hassrest/internal/ha"

	"go.uber.org/zap"
)

const usage = `usage: hassrest [-config file] [-debug] <command> [args]

commands:
  status                                 check that the API is running
  states                                 list all entity states
  state <entity_id>                      show one entity state
  set-state <entity_id> <state> [attrs]  create or update a state (attrs is a JSON object)
  fire <event_type> [data]               fire an event (data is a JSON object)
  call <domain> <service> [data]         call a service (data is a JSON object)
  template <template>                    render a template
  check-config                           validate configuration.yaml
`

var (
	errUsage         = errors.New("invalid usage")
	errConfigInvalid = errors.New("configuration is invalid")
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("hassrest", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := flags.String("config", "", "path to a YAML config file")
	debug := flags.Bool("debug", false, "enable debug logging")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	// Initialize logger
	zapConfig := zap.NewProductionConfig()
	if *debug {
		zapConfig = zap.NewDevelopmentConfig()
	}
	logger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	cfg, err := config.NewLoader(*configPath, logger).Load()
	if err != nil {
		logger.Error("Failed to load configuration", zap.Error(err))
		return 1
	}
	if !*debug {
		zapConfig.Level.SetLevel(cfg.Level())
	}

	client, err := ha.NewClient(cfg.BaseURL, cfg.Token, logger,
		ha.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	if err != nil {
		logger.Error("Failed to create client", zap.Error(err))
		return 1
	}

	// Cancel in-flight requests on Ctrl+C
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, client, flags.Args(), stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "%v\n\n%s", err, usage)
			return 2
		}
		logger.Error("Command failed", zap.Error(err))
		return 1
	}
	return 0
}

// execute runs one command against client and writes its result to out
func execute(ctx context.Context, client ha.HAClient, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "status":
		if err := expectArgs(cmd, args, 0, 0); err != nil {
			return err
		}
		status, err := client.GetAPIStatus(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, status)

	case "states":
		if err := expectArgs(cmd, args, 0, 0); err != nil {
			return err
		}
		states, err := client.GetStates(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, states)

	case "state":
		if err := expectArgs(cmd, args, 1, 1); err != nil {
			return err
		}
		state, err := client.GetState(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(out, state)

	case "set-state":
		if err := expectArgs(cmd, args, 2, 3); err != nil {
			return err
		}
		params := ha.StateParams{EntityID: args[0], State: args[1]}
		if len(args) == 3 {
			if err := json.Unmarshal([]byte(args[2]), &params.Attributes); err != nil {
				return fmt.Errorf("%w: attributes must be a JSON object: %v", errUsage, err)
			}
		}
		state, err := client.PostStates(ctx, params)
		if err != nil {
			return err
		}
		return printJSON(out, state)

	case "fire":
		if err := expectArgs(cmd, args, 1, 2); err != nil {
			return err
		}
		params := ha.EventParams{EventType: args[0]}
		if len(args) == 2 {
			data, err := parseObject(args[1])
			if err != nil {
				return err
			}
			params.EventData = data
		}
		result, err := client.PostEvents(ctx, params)
		if err != nil {
			return err
		}
		return printJSON(out, result)

	case "call":
		if err := expectArgs(cmd, args, 2, 3); err != nil {
			return err
		}
		params := ha.CallServiceParams{Domain: args[0], Service: args[1]}
		if len(args) == 3 {
			data, err := parseObject(args[2])
			if err != nil {
				return err
			}
			params.ServiceData = data
		}
		changed, err := client.PostService(ctx, params)
		if err != nil {
			return err
		}
		return printJSON(out, changed)

	case "template":
		if err := expectArgs(cmd, args, 1, 1); err != nil {
			return err
		}
		rendered, err := client.PostTemplate(ctx, ha.TemplateParams{Template: args[0]})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, rendered)
		return err

	case "check-config":
		if err := expectArgs(cmd, args, 0, 0); err != nil {
			return err
		}
		result, err := client.PostConfigCheck(ctx)
		if err != nil {
			return err
		}
		if err := printJSON(out, result); err != nil {
			return err
		}
		if !result.Valid() {
			return errConfigInvalid
		}
		return nil
	}

	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func expectArgs(cmd string, args []string, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		return fmt.Errorf("%w: %s takes %d to %d arguments, got %d", errUsage, cmd, lo, hi, len(args))
	}
	return nil
}

// parseObject checks that s is a JSON object and returns it unchanged
func parseObject(s string) (json.RawMessage, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%w: data must be a JSON object", errUsage)
	}
	return json.RawMessage(s), nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
