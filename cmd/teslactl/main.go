// Command teslactl 命令行授权与车辆命令工具
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/teslactl/internal/api/tesla"
	"github.com/langchou/teslactl/internal/app"
	"github.com/langchou/teslactl/internal/auth"
	"github.com/langchou/teslactl/internal/config"
	"github.com/langchou/teslactl/internal/models"
	"github.com/langchou/teslactl/internal/service"
)

// cliService 命令行用到的服务方法
type cliService interface {
	Login(ctx context.Context) (string, error)
	Callback(ctx context.Context, callbackURI string) error
	Refresh(ctx context.Context) (auth.TokenInfo, error)
	EnsureToken(ctx context.Context) (auth.TokenInfo, error)
	Logout(ctx context.Context) error
	ListVehicles(ctx context.Context) ([]*models.Vehicle, error)
	SelectVehicle(ctx context.Context, vin string) error
	Run(ctx context.Context, cmd tesla.Command) service.Outcome
}

var errUsage = errors.New("usage")

func usage(w io.Writer) {
	fmt.Fprintf(w, `teslactl
Usage:
  teslactl [-v] <cmd> [args]

Commands:
  login                    print the authorization URL
  callback <url>           exchange the redirect URL for tokens
  token                    ensure a valid token and print its remaining life
  refresh                  force a token refresh
  logout                   clear stored tokens
  vehicles                 list vehicles on the account
  select <vin>             select the vehicle for commands
  run <command>            run a vehicle command
  commands                 list vehicle commands

Config is read from the environment (.env supported); see STORE_FILE and STORE_PASSPHRASE.
`)
}

func main() {
	os.Exit(run())
}

// run 返回退出码，延迟的清理在进程退出前执行
func run() int {
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = func() { usage(os.Stderr) }
	flag.Parse()

	if flag.NArg() < 1 {
		usage(os.Stderr)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		return exitCode(err, os.Stderr)
	}

	logger := initLogger(*verbose || cfg.Debug)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger, app.Options{})
	if err != nil {
		return exitCode(err, os.Stderr)
	}
	defer a.Close()

	return exitCode(execute(ctx, a.Service, flag.Arg(0), flag.Args()[1:], os.Stdout), os.Stderr)
}

// exitCode 打印错误并映射为退出码：用法错误为 2，其他错误为 1
func exitCode(err error, stderr io.Writer) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, "error:", err)
		usage(stderr)
		return 2
	default:
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
}

func execute(ctx context.Context, svc cliService, cmd string, args []string, w io.Writer) error {
	switch cmd {
	case "login":
		u, err := svc.Login(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "Open this URL in a browser and authorize:")
		fmt.Fprintln(w, u)

	case "callback":
		if len(args) != 1 {
			return fmt.Errorf("%w: callback <url>", errUsage)
		}
		if err := svc.Callback(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(w, "Authentication successful")

	case "token":
		info, err := svc.EnsureToken(ctx)
		if err != nil {
			return err
		}
		printToken(w, info)

	case "refresh":
		info, err := svc.Refresh(ctx)
		if err != nil {
			return err
		}
		printToken(w, info)

	case "logout":
		if err := svc.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(w, "Tokens cleared")

	case "vehicles":
		vehicles, err := svc.ListVehicles(ctx)
		if err != nil {
			return err
		}
		for _, v := range vehicles {
			fmt.Fprintf(w, "%s\t%s\t%s\n", v.VIN, v.State, v.DisplayName)
		}

	case "select":
		if len(args) != 1 {
			return fmt.Errorf("%w: select <vin>", errUsage)
		}
		if err := svc.SelectVehicle(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(w, "Selected %s\n", args[0])

	case "run":
		if len(args) != 1 {
			return fmt.Errorf("%w: run <command>", errUsage)
		}
		c, err := tesla.ParseCommand(args[0])
		if err != nil {
			return err
		}
		out := svc.Run(ctx, c)
		fmt.Fprintln(w, out.Text)
		if out.Payload != "" {
			fmt.Fprintln(w, out.Payload)
		}
		if !out.Success {
			return fmt.Errorf("command %s failed", c)
		}

	case "commands":
		for _, c := range tesla.Commands() {
			online := ""
			if c.RequiresOnline() {
				online = "requires online"
			}
			fmt.Fprintf(w, "%-18s %-5s %s\n", c, c.Method(), online)
		}

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	return nil
}

func printToken(w io.Writer, info auth.TokenInfo) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(info)
}

// initLogger 命令行日志输出到 stderr
func initLogger(debug bool) *zap.Logger {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !debug {
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	config.OutputPaths = []string{"stderr"}

	logger, _ := config.Build()
	return logger
}
