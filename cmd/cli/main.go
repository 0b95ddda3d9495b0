package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	baseURL string
	timeout time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tally-cli",
		Short: "Tally CLI tool",
		Long:  `A command line interface for interacting with the Tally ledger API.`,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the Tally API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(accountCommands())
	rootCmd.AddCommand(transactionCommands())
	rootCmd.AddCommand(reconcileCommands())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func accountCommands() *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Account operations",
	}

	var (
		accountType   string
		currency      string
		allowNegative bool
	)

	createCmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			body := map[string]any{
				"name":     args[0],
				"type":     accountType,
				"currency": currency,
			}
			if cmd.Flags().Changed("allow-negative") {
				body["allow_negative"] = allowNegative
			}
			doRequest(http.MethodPost, "/api/v1/accounts", body)
		},
	}
	createCmd.Flags().StringVar(&accountType, "type", "asset", "Account type (asset, liability, equity, revenue, expense)")
	createCmd.Flags().StringVar(&currency, "currency", "USD", "Account currency")
	createCmd.Flags().BoolVar(&allowNegative, "allow-negative", false, "Override the per-type negative balance policy")

	getCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Get an account",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			doRequest(http.MethodGet, "/api/v1/accounts/"+url.PathEscape(args[0]), nil)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Run: func(cmd *cobra.Command, args []string) {
			doRequest(http.MethodGet, "/api/v1/accounts", nil)
		},
	}

	deactivateCmd := &cobra.Command{
		Use:   "deactivate [id]",
		Short: "Deactivate an account",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			doRequest(http.MethodDelete, "/api/v1/accounts/"+url.PathEscape(args[0]), nil)
		},
	}

	var asOfSequence string

	balanceCmd := &cobra.Command{
		Use:   "balance [id]",
		Short: "Get an account balance",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			path := "/api/v1/accounts/" + url.PathEscape(args[0]) + "/balance"
			if asOfSequence != "" {
				path += "?as_of_sequence=" + url.QueryEscape(asOfSequence)
			}
			doRequest(http.MethodGet, path, nil)
		},
	}
	balanceCmd.Flags().StringVar(&asOfSequence, "as-of-sequence", "", "Replay the journal up to this sequence")

	var pageToken string

	historyCmd := &cobra.Command{
		Use:   "history [id]",
		Short: "List an account's transactions",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			path := "/api/v1/accounts/" + url.PathEscape(args[0]) + "/transactions"
			if pageToken != "" {
				path += "?page_token=" + url.QueryEscape(pageToken)
			}
			doRequest(http.MethodGet, path, nil)
		},
	}
	historyCmd.Flags().StringVar(&pageToken, "page-token", "", "Continue from a previous page")

	accountCmd.AddCommand(createCmd, getCmd, listCmd, deactivateCmd, balanceCmd, historyCmd)

	return accountCmd
}

func transactionCommands() *cobra.Command {
	txnCmd := &cobra.Command{
		Use:   "transaction",
		Short: "Transaction operations",
	}

	var entriesJSON string

	postCmd := &cobra.Command{
		Use:   "post [idempotency-key] [type]",
		Short: "Post a balanced transaction",
		Long:  `Post a transaction. Entries are passed as a JSON array, e.g. '[{"account_id":"a","direction":"debit","amount":"10.00","currency":"USD"},...]'.`,
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			var entries []map[string]any
			if err := json.Unmarshal([]byte(entriesJSON), &entries); err != nil {
				fmt.Printf("Invalid entries JSON: %v\n", err)
				os.Exit(1)
			}
			doRequest(http.MethodPost, "/api/v1/transactions", map[string]any{
				"idempotency_key": args[0],
				"type":            args[1],
				"entries":         entries,
			})
		},
	}
	postCmd.Flags().StringVar(&entriesJSON, "entries", "[]", "Transaction entries as JSON")

	getCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Get a transaction",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			doRequest(http.MethodGet, "/api/v1/transactions/"+url.PathEscape(args[0]), nil)
		},
	}

	reverseCmd := &cobra.Command{
		Use:   "reverse [id]",
		Short: "Reverse a posted transaction",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			doRequest(http.MethodPost, "/api/v1/transactions/"+url.PathEscape(args[0])+"/reverse", nil)
		},
	}

	txnCmd.AddCommand(postCmd, getCmd, reverseCmd)

	return txnCmd
}

func reconcileCommands() *cobra.Command {
	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconciliation operations",
	}

	var accountID string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile balances against the journal",
		Run: func(cmd *cobra.Command, args []string) {
			path := "/api/v1/reconciliation/run"
			if accountID != "" {
				path += "?account_id=" + url.QueryEscape(accountID)
			}
			doRequest(http.MethodPost, path, nil)
		},
	}
	runCmd.Flags().StringVar(&accountID, "account", "", "Reconcile a single account")

	consistencyCmd := &cobra.Command{
		Use:   "consistency",
		Short: "Check the journal-wide debit/credit invariant",
		Run: func(cmd *cobra.Command, args []string) {
			doRequest(http.MethodGet, "/api/v1/reconciliation/consistency", nil)
		},
	}

	reconcileCmd.AddCommand(runCmd, consistencyCmd)

	return reconcileCmd
}

func doRequest(method, path string, body any) {
	client := &http.Client{Timeout: timeout}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			fmt.Printf("Failed to encode request: %v\n", err)
			os.Exit(1)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		fmt.Printf("Error building request: %v\n", err)
		os.Exit(1)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error making request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, respBody, "", "  "); err != nil {
		fmt.Println(string(respBody))
	} else {
		fmt.Println(pretty.String())
	}

	if resp.StatusCode >= 400 {
		fmt.Printf("Request failed (Status: %d)\n", resp.StatusCode)
		os.Exit(1)
	}
}
