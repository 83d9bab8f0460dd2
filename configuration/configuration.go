package configuration

import (
	"time"
)

type Configuration struct {
	HttpAddr          string `usage:"HTTP address"`
	EnableCompression bool   `usage:"gzip responses when the client accepts it"`

	Dir           string        `usage:"data directory"`
	ReadOnly      bool          `usage:"open the database read only"`
	SegmentSize   uint64        `usage:"segment capacity in bytes, 0 means unlimited"`
	AllowDirty    bool          `usage:"open a database that was not closed cleanly"`
	Codec         string        `usage:"block encoding: gob or cbor"`
	FlushInterval time.Duration `usage:"time between background flushes, 0 disables them"`

	Cache      bool `usage:"keep the cache queue used to build worldstate checkpoints"`
	CacheDepth int  `usage:"cache frames kept when a checkpoint is pushed"`

	LockPoolSize int           `usage:"number of rotating read/write locks"`
	LockTimeout  time.Duration `usage:"maximum wait for a lock, 0 waits forever"`

	Genesis            string        `usage:"initial balances of an empty ledger, as name=amount,name=amount"`
	WorldstateFile     string        `usage:"SQLite file the worldstate is exported to"`
	WorldstateInterval time.Duration `usage:"time between worldstate exports, 0 disables them"`

	LogLevel   string `usage:"log level: debug, info, warn or error"`
	Version    bool   `usage:"show version and exit"`
	ShowBanner bool   `usage:"show big banner"`
	ShowConfig bool   `usage:"print config"`
}

func Default() Configuration {
	return Configuration{
		HttpAddr:          "127.0.0.1:8080",
		EnableCompression: true,

		Dir:           "data",
		SegmentSize:   1 << 30,
		Codec:         "gob",
		FlushInterval: 10 * time.Second,

		Cache:      true,
		CacheDepth: 1,

		LockPoolSize: 10,
		LockTimeout:  5 * time.Second,

		WorldstateFile: "worldstate.db",

		LogLevel:   "info",
		ShowBanner: true,
	}
}
