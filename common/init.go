package common

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// Version is stamped at build time with -ldflags "-X .../common.Version=...".
var Version = "v0.0.0"

// StartTime is the process start in unix seconds.
var StartTime = time.Now().Unix()

var (
	Port         = flag.Int("port", 3000, "the listening port, overridden by PORT")
	PrintVersion = flag.Bool("version", false, "print version and exit")
)

// Init parses the command line flags.
func Init() {
	flag.Parse()

	if *PrintVersion {
		fmt.Println(Version)
		os.Exit(0)
	}
}
