// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import "flag"

var (
	flagMigrateDB, flagServer, flagVersion, flagLogDateTime bool
	flagMigrateRoot, flagConfigFile, flagLogLevel           string
	flagMigrateChannels                                     string
)

func cliInit() {
	flag.BoolVar(&flagServer, "server", false, "Start the query-API HTTP server, continuing to listen after initialization")
	flag.BoolVar(&flagMigrateDB, "migrate-db", false, "Apply pending ClickHouse schema migrations and exit")
	flag.BoolVar(&flagVersion, "version", false, "Show version information and exit")
	flag.BoolVar(&flagLogDateTime, "logdate", false, "Add date and time to log messages")
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Specify alternative path to `config.json`")
	flag.StringVar(&flagMigrateRoot, "migrate-legacy-logs", "", "Root `directory` of legacy per-day log files to import and exit")
	flag.StringVar(&flagMigrateChannels, "migrate-channels", "", "Comma-separated allow-list of channel IDs for -migrate-legacy-logs (default: every channel under the root)")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "Sets the logging level: `[debug, info, warn, err]`")
	flag.Parse()
}
