package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/sievedata/pivot/pkg/httpd"
	"github.com/sievedata/pivot/service"
	"github.com/sievedata/pivot/service/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var listenFlags struct {
	addr       string
	root       string
	exportRoot string
	redisAddr  string
	cacheTTL   time.Duration
	logLevel   string
	logPath    string
	logMode    string
	configFile string
	portFile   string
	cors       []string
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "listen as a daemon and respond to pivot service requests",
	RunE:  runListen,
}

func init() {
	f := listenCmd.Flags()
	f.StringVarP(&listenFlags.addr, "listen", "l", ":9867", "[addr]:port to listen on")
	f.StringVar(&listenFlags.root, "data", ".", "data location")
	f.StringVar(&listenFlags.exportRoot, "export", "", "location for saved pivot files (empty disables save)")
	f.StringVar(&listenFlags.redisAddr, "redis", "", "redis address for the result cache (empty uses an in-process cache)")
	f.DurationVar(&listenFlags.cacheTTL, "cache.ttl", time.Hour, "lifetime of cached results")
	f.StringVar(&listenFlags.logLevel, "loglevel", "info", "level for log output")
	f.StringVar(&listenFlags.logPath, "logpath", "stderr", "path to send logs (values: stderr, stdout, path in file system)")
	f.StringVar(&listenFlags.logMode, "logfilemode", "append", "log file write mode (values: append, truncate, rotate)")
	f.StringVar(&listenFlags.configFile, "config", "", "path to a pivotd config file")
	f.StringVar(&listenFlags.portFile, "portfile", "", "write port of http listener to file")
	f.StringSliceVar(&listenFlags.cors, "cors.origin", nil, "CORS allowed origin (may be repeated)")
}

func runListen(cmd *cobra.Command, args []string) error {
	conf := service.Config{
		Root:       listenFlags.root,
		ExportRoot: listenFlags.exportRoot,
		CacheTTL:   listenFlags.cacheTTL,
		Version:    version,
	}
	if listenFlags.configFile != "" {
		b, err := os.ReadFile(listenFlags.configFile)
		if err != nil {
			return err
		}
		if err := service.LoadConfigYAML(b, &conf); err != nil {
			return err
		}
	}
	if listenFlags.redisAddr != "" {
		conf.Redis.Enabled = true
		conf.Redis.Addr = listenFlags.redisAddr
	}
	if len(listenFlags.cors) > 0 {
		conf.CORSAllowedOrigins = listenFlags.cors
	}
	log, err := openLogger(&conf)
	if err != nil {
		return err
	}
	defer log.Sync()
	conf.Logger = log

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	go func() {
		sig := <-ch
		log.Info("Signal received", zap.Stringer("signal", sig))
		cancel()
	}()

	core, err := service.NewCore(ctx, conf)
	if err != nil {
		return err
	}
	defer core.Shutdown()

	srv := httpd.New(listenFlags.addr, core)
	srv.SetLogger(log.Named("httpd"))
	if err := srv.Start(ctx); err != nil {
		return err
	}
	if listenFlags.portFile != "" {
		if err := writePortFile(listenFlags.portFile, srv.Addr()); err != nil {
			return err
		}
	}
	return srv.Wait()
}

func openLogger(conf *service.Config) (*zap.Logger, error) {
	lc := conf.LoggerConfig
	if lc.Path == "" {
		lc.Path = listenFlags.logPath
		if err := lc.Mode.Set(listenFlags.logMode); err != nil {
			return nil, err
		}
		var level zapcore.Level
		if err := level.Set(listenFlags.logLevel); err != nil {
			return nil, err
		}
		lc.Level = level
	}
	return logger.New(lc)
}

func writePortFile(path, addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(port), 0644)
}
