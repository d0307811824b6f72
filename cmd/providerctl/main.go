// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// providerctl wires the provider gate to a single key keyring, a file backed
// chain and the on-disk permission store, and dispatches one request the way
// a site would. The result is printed to standard output as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/btcsuite/btcprovider/keyring"
	"github.com/btcsuite/btcprovider/permission"
	"github.com/btcsuite/btcprovider/provider"
	"github.com/btcsuite/btcprovider/wallet"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"
	"golang.org/x/time/rate"
)

// staticAccounts always reports the account of the configured key.
type staticAccounts struct {
	account *wallet.Account
	wallet  *wallet.WalletInfo
}

func (s *staticAccounts) CurrentAccount() *wallet.Account {
	return s.account
}

func (s *staticAccounts) CurrentWallet() *wallet.WalletInfo {
	return s.wallet
}

// response is the JSON document printed for a dispatched request.
type response struct {
	Result any                     `json:"result,omitempty"`
	Error  *provider.ProviderError `json:"error,omitempty"`
}

func main() {
	err := run()
	closeLogRotator()

	if err != nil && !errors.Is(err, errHelpShown) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, args, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	store, err := permission.Open(cfg.permissionDBPath(), cfg.DBTimeout)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Errorf("Unable to close permission db: %v", err)
		}
	}()

	switch {
	case cfg.ListSites:
		sites, err := store.ConnectedSites(ctx)
		if err != nil {
			return err
		}

		return printJSON(sites)

	case cfg.DisconnectSite:
		return store.Disconnect(ctx, cfg.Origin)

	case cfg.ConnectSite:
		err := store.Connect(ctx, permission.Site{Origin: cfg.Origin})
		if err != nil {
			return err
		}
	}

	wif, err := readWIF(cfg.WIF)
	if err != nil {
		return err
	}

	key, err := keyring.FromWIF(wif, cfg.params)
	if err != nil {
		return err
	}

	chain, err := loadFileChain(cfg.UtxoFile, key.Address())
	if err != nil {
		return err
	}

	accounts := &staticAccounts{
		account: key.Account(cfg.AccountName),
		wallet:  &wallet.WalletInfo{ID: 1, Name: "providerctl"},
	}

	w, err := wallet.New(wallet.Config{
		Accounts:    accounts,
		Chain:       chain,
		Keyring:     key,
		ChainParams: cfg.params,
	})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	gate, err := provider.NewGate(provider.Config{
		Accounts:    accounts,
		Permissions: store,
		Chain:       chain,
		Keyring:     key,
		Builder:     w,
		RateLimit:   rate.Limit(cfg.RateLimit),
		RateBurst:   cfg.RateBurst,
		Registerer:  registry,
	})
	if err != nil {
		return err
	}

	req, err := buildRequest(cfg, args)
	if err != nil {
		return err
	}

	log.Infof("Dispatching %v for %s on %s", req.Method, req.Origin,
		cfg.params.Name)

	result, err := gate.Dispatch(ctx, req)
	logMetrics(registry)
	if err != nil {
		if printErr := printJSON(response{
			Error: provider.Classify(err),
		}); printErr != nil {
			return printErr
		}

		return err
	}

	return printJSON(response{Result: result})
}

// buildRequest turns the configured method and the positional arguments into
// a request. Arguments that are not valid JSON are passed as strings.
func buildRequest(cfg *config, args []string) (*provider.Request, error) {
	req := &provider.Request{
		Origin: cfg.Origin,
		Method: provider.OperationID(cfg.Method),
	}

	for _, arg := range args {
		if json.Valid([]byte(arg)) {
			req.Params = append(req.Params, json.RawMessage(arg))
			continue
		}

		raw, err := json.Marshal(arg)
		if err != nil {
			return nil, err
		}
		req.Params = append(req.Params, raw)
	}

	if !cfg.Approve {
		return req, nil
	}

	desc, ok := provider.LookupOperation(req.Method)
	if !ok || !desc.RequiresApproval() {
		return nil, fmt.Errorf("operation %q takes no approval",
			cfg.Method)
	}

	approval := provider.ApprovalResult{
		Kind: desc.ApprovalKinds.ToSlice()[0],
	}
	if cfg.ApprovalData != "" {
		if !json.Valid([]byte(cfg.ApprovalData)) {
			return nil, errors.New("approval data is not valid JSON")
		}
		approval.Payload = json.RawMessage(cfg.ApprovalData)
	}
	req.Approval = fn.Some(approval)

	return req, nil
}

// readWIF returns the configured key, prompting for it on the terminal when
// it is not set.
func readWIF(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no key given, use --wif")
	}

	fmt.Fprint(os.Stderr, "Enter WIF private key: ")
	wif, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("unable to read key: %w", err)
	}

	return strings.TrimSpace(string(wif)), nil
}

// logMetrics writes the dispatch counters at debug level.
func logMetrics(registry *prometheus.Registry) {
	families, err := registry.Gather()
	if err != nil {
		log.Warnf("Unable to gather metrics: %v", err)
		return
	}

	for _, family := range families {
		for _, metric := range family.GetMetric() {
			var labels []string
			for _, pair := range metric.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%s",
					pair.GetName(), pair.GetValue()))
			}

			switch {
			case metric.GetCounter() != nil:
				log.Debugf("%s{%s} %v", family.GetName(),
					strings.Join(labels, ","),
					metric.GetCounter().GetValue())

			case metric.GetHistogram() != nil:
				log.Debugf("%s{%s} count=%d sum=%v",
					family.GetName(),
					strings.Join(labels, ","),
					metric.GetHistogram().GetSampleCount(),
					metric.GetHistogram().GetSampleSum())
			}
		}
	}
}

// printJSON writes v to standard output.
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}
