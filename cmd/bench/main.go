package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/fulldump/goconfig"
)

type Config struct {
	Test      string `usage:"name of the test: ALL | BLOCKS | READ"`
	Base      string `usage:"base URL, an embedded server is started when empty"`
	Accounts  int    `usage:"number of accounts created by genesis"`
	Blocks    int64  `usage:"number of blocks to apply"`
	Transfers int    `usage:"transfers per block"`
	Lag       int64  `usage:"blocks kept revertible before committing"`
	Requests  int64  `usage:"number of read requests"`
	Workers   int    `usage:"number of workers"`
}

var cleanups []func()

func main() {

	defer func() {
		fmt.Println("Cleaning up...")
		for _, cleanup := range cleanups {
			cleanup()
		}
	}()

	c := Config{
		Test:      "all",
		Base:      "",
		Accounts:  1000,
		Blocks:    10_000,
		Transfers: 50,
		Lag:       20,
		Requests:  100_000,
		Workers:   16,
	}
	goconfig.Read(&c)

	switch strings.ToUpper(c.Test) {
	case "ALL":
		TestBlocks(c)
		TestRead(c)
	case "BLOCKS":
		TestBlocks(c)
	case "READ":
		TestRead(c)
	default:
		log.Fatalf("Unknown test %s", c.Test)
	}

}
