package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"
)

func TestRead(c Config) {

	if c.Base == "" {
		start, stop := CreateServer(&c)
		defer stop()
		go start()
		time.Sleep(100 * time.Millisecond)
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     1024,
			MaxIdleConnsPerHost: 1024,
			MaxIdleConns:        1024,
		},
	}

	requests := c.Requests
	failed := int64(0)

	t0 := time.Now()
	Parallel(c.Workers, func() {
		for {
			n := atomic.AddInt64(&requests, -1)
			if n < 0 {
				break
			}
			id := strconv.Itoa(rand.IntN(c.Accounts))
			resp, err := client.Get(c.Base + "/v1/indexes/account/records/" + id)
			if err != nil {
				fmt.Println("ERROR: do request:", err.Error())
				os.Exit(4)
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				atomic.AddInt64(&failed, 1)
			}
		}
	})

	took := time.Since(t0)
	fmt.Println("sent:", c.Requests)
	fmt.Println("failed:", failed)
	fmt.Println("took:", took)
	fmt.Printf("Throughput: %.2f requests/sec\n", float64(c.Requests)/took.Seconds())
}
