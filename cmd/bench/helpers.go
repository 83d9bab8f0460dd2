package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fulldump/ledgerdb/bootstrap"
	"github.com/fulldump/ledgerdb/configuration"
)

func Parallel(workers int, f func()) {
	wg := &sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}
	wg.Wait()
}

func TempDir() (string, func()) {
	dir, err := os.MkdirTemp("", "ledgerdb_bench_*")
	if err != nil {
		panic("Could not create temp directory: " + err.Error())
	}

	cleanup := func() {
		os.RemoveAll(dir)
	}

	return dir, cleanup
}

func AccountName(i int) string {
	return fmt.Sprintf("account-%06d", i)
}

func Genesis(accounts int, balance int64) string {
	pairs := make([]string, accounts)
	for i := range pairs {
		pairs[i] = fmt.Sprintf("%s=%d", AccountName(i), balance)
	}
	return strings.Join(pairs, ",")
}

func CreateServer(c *Config) (start, stop func()) {
	dir, cleanup := TempDir()
	cleanups = append(cleanups, cleanup)

	conf := configuration.Default()
	conf.Dir = dir
	conf.ShowBanner = false
	conf.EnableCompression = false
	conf.WorldstateInterval = 0
	conf.Genesis = Genesis(c.Accounts, 1_000)
	c.Base = "http://" + conf.HttpAddr

	return bootstrap.Bootstrap(&conf, zap.NewNop())
}
