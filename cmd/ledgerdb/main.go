package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fulldump/goconfig"

	"github.com/fulldump/ledgerdb/bootstrap"
	"github.com/fulldump/ledgerdb/configuration"
)

var banner = `
 _          _                 ____________ 
| |        | |                |  _  \ ___ \
| | ___  __| | __ _  ___ _ __ | | | | |_/ /
| |/ _ \/ _' |/ _' |/ _ \ '__|| | | | ___ \
| |  __/ (_| | (_| |  __/ |   | |/ /| |_/ /
|_|\___|\__,_|\__, |\___|_|   |___/ \____/ 
               __/ |                       
              |___/       version ` + bootstrap.VERSION + `
`

func main() {

	c := configuration.Default()
	goconfig.Read(&c)

	if c.Version {
		fmt.Println("Version:", bootstrap.VERSION)
		return
	}

	if c.ShowBanner {
		fmt.Println(banner)
	}

	if c.ShowConfig {
		e := json.NewEncoder(os.Stdout)
		e.SetIndent("", "    ")
		e.Encode(c)
	}

	logger, err := bootstrap.NewLogger(c.LogLevel)
	if err != nil {
		fmt.Println("ERROR:", err.Error())
		os.Exit(-1)
	}

	start, _ := bootstrap.Bootstrap(&c, logger)
	start()
}
