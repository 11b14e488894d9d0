package main

// Flag structs decouple cobra from the handlers for testing.

// GlobalFlags holds persistent flags shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
	NoColor    bool
}

// ScenarioFlags carries the per-run overrides for scenario commands.
// Empty or zero values leave the config untouched.
type ScenarioFlags struct {
	Package     string
	Activity    string
	Library     string
	ServerPath  string
	Port        int
	Serial      string
	AVD         string
	DebugWait   bool
	HistoryDSN  string
	MetricsAddr string
}

// EnterURLFlags holds flags for the enter-url command.
type EnterURLFlags struct {
	ScenarioFlags
	URL string
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Addr       string
	BasePath   string
	HistoryDSN string
}
