package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fulldump/box"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fulldump/ledgerdb/api"
	"github.com/fulldump/ledgerdb/configuration"
	"github.com/fulldump/ledgerdb/database"
	"github.com/fulldump/ledgerdb/ledger"
	"github.com/fulldump/ledgerdb/service"
	"github.com/fulldump/ledgerdb/worldstate"
)

var VERSION = "dev"

func NewLogger(level string) (*zap.Logger, error) {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(l)
	return config.Build()
}

func Bootstrap(c *configuration.Configuration, logger *zap.Logger) (start, stop func()) {

	db, err := database.NewDatabase(&database.Config{
		Dir:           c.Dir,
		ReadOnly:      c.ReadOnly,
		SegmentSize:   c.SegmentSize,
		Cache:         c.Cache,
		CacheDepth:    c.CacheDepth,
		AllowDirty:    c.AllowDirty,
		LockPoolSize:  c.LockPoolSize,
		LockTimeout:   c.LockTimeout,
		Codec:         c.Codec,
		FlushInterval: c.FlushInterval,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}

	l, err := ledger.New(db, c.LockTimeout, logger)
	if err != nil {
		logger.Fatal("register ledger", zap.Error(err))
	}

	if err := db.Load(); err != nil {
		logger.Fatal("load database", zap.Error(err))
	}

	if c.Genesis != "" && !c.ReadOnly && db.RowCountPerIndex()["account"] == 0 {
		balances, err := ledger.ParseBalances(c.Genesis)
		if err != nil {
			logger.Fatal("parse genesis", zap.Error(err))
		}
		if err := l.Genesis(balances); err != nil {
			logger.Fatal("genesis", zap.Error(err))
		}
	}

	b := api.Build(service.NewService(db, c.LockTimeout), VERSION)
	if c.EnableCompression {
		b.WithInterceptors(api.Compression)
	}
	b.WithInterceptors(
		api.AccessLog(zap.NewStdLog(logger.Named("access"))),
		box.RecoverFromPanic,
		api.PrettyErrorInterceptor,
		api.InterceptorUnavailable(db),
	)

	s := &http.Server{
		Addr:    c.HttpAddr,
		Handler: box.Box2Http(b),
	}

	ln, err := net.Listen("tcp", c.HttpAddr)
	if err != nil {
		logger.Fatal("listen", zap.String("addr", c.HttpAddr), zap.Error(err))
	}
	logger.Info("listening", zap.String("addr", c.HttpAddr))

	exit := make(chan struct{})
	stopOnce := sync.Once{}
	stop = func() {
		stopOnce.Do(func() {
			close(exit)
			s.Shutdown(context.Background())
			if err := db.Stop(); err != nil {
				logger.Error("stop database", zap.Error(err))
			}
			logger.Sync()
		})
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signalChan
		logger.Info("signal received", zap.String("signal", sig.String()))
		stop()
	}()

	start = func() {

		wg := &sync.WaitGroup{}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := db.Start(); err != nil {
				logger.Error("database", zap.Error(err))
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Serve(ln); err != nil && err != http.ErrServerClosed {
				logger.Error("http server", zap.Error(err))
			}
		}()

		if c.WorldstateInterval > 0 && !c.ReadOnly && c.Cache {
			wg.Add(1)
			go func() {
				defer wg.Done()
				exportWorldstate(worldstate.NewBuilder(db, c.LockTimeout, logger), c.WorldstateFile, c.WorldstateInterval, exit, logger)
			}()
		}

		wg.Wait()
	}

	return
}

func exportWorldstate(b *worldstate.Builder, filename string, interval time.Duration, exit chan struct{}, logger *zap.Logger) {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := b.Drain(); err != nil {
				logger.Warn("drain cache", zap.Error(err))
				continue
			}
			if _, err := b.Export(filename); err != nil {
				logger.Warn("export worldstate", zap.Error(err))
			}
		case <-exit:
			return
		}
	}
}
