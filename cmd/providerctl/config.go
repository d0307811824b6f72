// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcprovider/permission"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "providerctl.conf"
	defaultLogFilename    = "providerctl.log"
	defaultPermissionDB   = "permission.db"
	defaultLogLevel       = "info"
	defaultNetwork        = "mainnet"
	defaultAccountName    = "Account 1"
	defaultOrigin         = "providerctl://local"
	defaultRateLimit      = 0.0
	defaultRateBurst      = 1
)

var (
	defaultAppDataDir = btcutil.AppDataDir("btcprovider", false)
	defaultConfigFile = filepath.Join(defaultAppDataDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(defaultAppDataDir, "logs")
)

// errHelpShown is returned by loadConfig when the usage was printed.
var errHelpShown = errors.New("help shown")

// config holds the options of providerctl. Options can be set on the command
// line or in the INI config file, the command line taking precedence.
type config struct {
	ConfigFile string        `short:"C" long:"configfile" description:"Path to configuration file"`
	AppDataDir string        `short:"A" long:"appdata" description:"Application data directory for the permission database"`
	LogDir     string        `long:"logdir" description:"Directory to log output"`
	DebugLevel string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	Network    string        `long:"network" description:"Network to build transactions for {mainnet, testnet3, regtest, signet, simnet}"`
	DBTimeout  time.Duration `long:"dbtimeout" description:"Timeout for acquiring the permission database lock"`

	WIF         string `long:"wif" description:"WIF encoded private key of the account; prompted for if not set"`
	AccountName string `long:"accountname" description:"Display name of the account"`
	UtxoFile    string `long:"utxofile" description:"JSON file listing the spendable outputs of the account"`

	Origin       string  `long:"origin" description:"Origin of the site making the request"`
	Method       string  `short:"m" long:"method" description:"Operation to dispatch"`
	Approve      bool    `long:"approve" description:"Attach a user approval of the kind the operation requires"`
	ApprovalData string  `long:"approvaldata" description:"JSON payload of the attached approval"`
	RateLimit    float64 `long:"ratelimit" description:"Requests per second allowed per origin, 0 disables the limit"`
	RateBurst    int     `long:"rateburst" description:"Requests an origin may send at once"`

	ConnectSite    bool `long:"connectsite" description:"Connect the origin before dispatching"`
	DisconnectSite bool `long:"disconnectsite" description:"Disconnect the origin and exit"`
	ListSites      bool `long:"listsites" description:"List the connected sites and exit"`

	params *chaincfg.Params
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultAppDataDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// networkParams returns the chain parameters of the named network.
func networkParams(name string) (*chaincfg.Params, error) {
	switch strings.ToLower(name) {
	case "mainnet":
		return &chaincfg.MainNetParams, nil

	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil

	case "regtest":
		return &chaincfg.RegressionNetParams, nil

	case "signet":
		return &chaincfg.SigNetParams, nil

	case "simnet":
		return &chaincfg.SimNetParams, nil

	default:
		return nil, fmt.Errorf("unknown network %q", name)
	}
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly. An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") &&
		!strings.Contains(debugLevel, "=") {

		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", debugLevel)
		}

		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while
	// detecting issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return fmt.Errorf("the specified debug level contains "+
				"an invalid subsystem/level pair [%v]",
				logLevelPair)
		}

		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		if _, exists := subsystemLoggers[subsysID]; !exists {
			return fmt.Errorf("the specified subsystem [%v] is "+
				"invalid -- supported subsystems %v", subsysID,
				supportedSubsystems())
		}

		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}

	return false
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The remaining command line arguments are the operation's params.
func loadConfig(args []string) (*config, []string, error) {
	cfg := config{
		ConfigFile:  defaultConfigFile,
		AppDataDir:  defaultAppDataDir,
		LogDir:      defaultLogDir,
		DebugLevel:  defaultLogLevel,
		Network:     defaultNetwork,
		DBTimeout:   permission.DefaultDBTimeout,
		AccountName: defaultAccountName,
		Origin:      defaultOrigin,
		RateLimit:   defaultRateLimit,
		RateBurst:   defaultRateBurst,
	}

	// Pre-parse the command line options to see if an alternative config
	// file was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			return nil, nil, errHelpShown
		}

		return nil, nil, err
	}

	// Show the available subsystems and exit if requested.
	if preCfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		return nil, nil, errHelpShown
	}

	// Load additional config from file.
	parser := flags.NewParser(&cfg, flags.Default)
	configFile := cleanAndExpandPath(preCfg.ConfigFile)
	err = flags.NewIniParser(parser).ParseFile(configFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, nil, fmt.Errorf("error parsing config "+
				"file: %w", err)
		}

		// A missing default config file is fine.
		if preCfg.ConfigFile != defaultConfigFile {
			return nil, nil, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		return nil, nil, err
	}

	cfg.AppDataDir = cleanAndExpandPath(cfg.AppDataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	cfg.params, err = networkParams(cfg.Network)
	if err != nil {
		return nil, nil, err
	}

	if err := initLogRotator(filepath.Join(
		cfg.LogDir, cfg.params.Name, defaultLogFilename,
	)); err != nil {
		return nil, nil, err
	}

	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, nil, err
	}

	switch {
	case cfg.ListSites || cfg.DisconnectSite:
	case cfg.Method == "":
		return nil, nil, errors.New("no method specified, use " +
			"--method")
	}

	if cfg.RateLimit < 0 || cfg.RateBurst < 0 {
		return nil, nil, errors.New("rate limit and burst must not be " +
			"negative")
	}

	return &cfg, remainingArgs, nil
}

// permissionDBPath returns the path of the permission database of the
// configured network.
func (c *config) permissionDBPath() string {
	return filepath.Join(c.AppDataDir, c.params.Name, defaultPermissionDB)
}
