package main

import "flag"

var (
	flagVersion        bool
	flagGops           bool
	flagLogDateTime    bool
	flagValidateConfig bool
	flagLogLevel       string
)

func cliInit() {
	flag.BoolVar(&flagVersion, "version", false, "Show version information and exit")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.BoolVar(&flagLogDateTime, "logdate", false, "Set this flag to add date and time to log messages")
	flag.BoolVar(&flagValidateConfig, "validate-config", false, "Validate register maps and device configs, then exit without starting the poller")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "Sets the logging level: `[debug, info, warn, err, crit]`")
	flag.Parse()
}
