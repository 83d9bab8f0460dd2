package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fulldump/ledgerdb/database"
	"github.com/fulldump/ledgerdb/ledger"
)

func TestBlocks(c Config) {

	dir, cleanup := TempDir()
	cleanups = append(cleanups, cleanup)

	db, err := database.NewDatabase(&database.Config{
		Dir:   dir,
		Cache: true,
	})
	if err != nil {
		fmt.Println("ERROR: open database:", err.Error())
		os.Exit(2)
	}

	l, err := ledger.New(db, time.Second, zap.NewNop())
	if err != nil {
		fmt.Println("ERROR: register ledger:", err.Error())
		os.Exit(3)
	}

	balances := map[string]int64{}
	for i := 0; i < c.Accounts; i++ {
		balances[AccountName(i)] = 1_000
	}
	if err := l.Genesis(balances); err != nil {
		fmt.Println("ERROR: genesis:", err.Error())
		os.Exit(4)
	}

	applied := int64(0)
	rejected := int64(0)

	go func() {
		for {
			fmt.Println("applied:", atomic.LoadInt64(&applied), "rejected:", atomic.LoadInt64(&rejected))
			time.Sleep(1 * time.Second)
		}
	}()

	t0 := time.Now()
	for n := int64(1); n <= c.Blocks; n++ {

		block := &ledger.Block{
			Number:     n,
			Checkpoint: c.Lag > 0 && n%c.Lag == 0,
		}
		for i := 0; i < c.Transfers; i++ {
			block.Transfers = append(block.Transfers, ledger.Transfer{
				From:   AccountName(rand.IntN(c.Accounts)),
				To:     AccountName(rand.IntN(c.Accounts)),
				Amount: rand.Int64N(100) + 1,
			})
		}

		result, err := l.ApplyBlock(block)
		if err != nil {
			fmt.Println("ERROR: apply block:", err.Error())
			os.Exit(5)
		}
		atomic.AddInt64(&applied, int64(result.Applied))
		atomic.AddInt64(&rejected, int64(len(result.Rejected)))

		if n > c.Lag {
			if err := l.Commit(n - c.Lag); err != nil {
				fmt.Println("ERROR: commit:", err.Error())
				os.Exit(6)
			}
		}
	}

	took := time.Since(t0)
	fmt.Println("blocks:", c.Blocks)
	fmt.Println("took:", took)
	fmt.Printf("Throughput: %.2f transfers/sec\n", float64(applied+rejected)/took.Seconds())

	if err := db.Close(); err != nil {
		fmt.Println("ERROR: close:", err.Error())
		os.Exit(7)
	}
}
