// Command nwclink is a wallet connect command line client. The connection
// string comes from the NWCLINK_CONNECTION environment variable, the
// persisted connection record, or the first argument when it carries the
// nostr+walletconnect scheme.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"nwclink.dev/pkg/config"
	"nwclink.dev/pkg/protocol/nwc"
	"nwclink.dev/pkg/utils/chk"
	"nwclink.dev/pkg/utils/context"
	"nwclink.dev/pkg/utils/values"
)

func printUsage() {
	fmt.Println("Usage: nwclink [\"<connection URI>\"] <method> [parameters...]")
	fmt.Println("\nSupported methods:")
	fmt.Println("  connect <uri>        - Persist a wallet connection for later calls")
	fmt.Println("  get_info             - Get wallet information")
	fmt.Println("  get_balance          - Get wallet balance in millisatoshis")
	fmt.Println("  make_invoice         - Create an invoice (amount_msat, description, [expiry_seconds])")
	fmt.Println("  pay_invoice          - Pay an invoice (invoice, [amount_msat])")
	fmt.Println("  lookup_invoice       - Look up an invoice (payment_hash or invoice)")
	fmt.Println("  list_transactions    - List transactions ([from], [until], [limit], [offset], [unpaid], [type])")
	fmt.Println("  service_info         - Show the wallet's published info event")
	fmt.Println("\nParameters format:")
	fmt.Println("  - Positional parameters are used for required fields")
	fmt.Println("  - For list_transactions, named parameters are used")
	fmt.Println("    Example: nwclink list_transactions limit 10 type incoming")
	os.Exit(1)
}

func fail(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

func main() {
	cfg, err := config.New()
	if chk.E(err) {
		fail("Error loading configuration: %v", err)
	}
	if config.HelpRequested() || len(os.Args) < 2 {
		config.PrintHelp(cfg, os.Stderr)
		printUsage()
	}
	if config.GetEnv() {
		config.PrintEnv(cfg, os.Stdout)
		return
	}

	args := os.Args[1:]
	connection := cfg.Connection
	if strings.HasPrefix(args[0], nwc.Scheme+"://") {
		connection = args[0]
		args = args[1:]
		if len(args) == 0 {
			printUsage()
		}
	}
	method := args[0]
	params := args[1:]

	if method == "connect" {
		if len(params) < 1 {
			fail("Error: connect requires a connection URI")
		}
		if !nwc.IsValidConnectionURI(params[0]) {
			fail("Error: not a valid connection URI")
		}
		if err = cfg.SaveConnection(params[0]); chk.E(err) {
			fail("Error saving connection: %v", err)
		}
		fmt.Printf("connection saved to %s\n", cfg.ConnectionPath())
		return
	}

	if connection == "" {
		if connection, err = cfg.LoadConnection(); err != nil {
			fail("Error: no connection configured; run 'nwclink connect <uri>' first")
		}
	}

	var opts []nwc.ClientOption
	if cfg.BridgeURL != "" {
		opts = append(opts, nwc.WithBridgeURL(cfg.BridgeURL))
	}
	if cfg.Strict {
		opts = append(opts, nwc.WithStrictCapabilities())
	}
	if cfg.Timeout > 0 {
		opts = append(opts, nwc.WithTimeout(cfg.Timeout))
	}
	c, cancel := context.Cancel(context.Bg())
	defer cancel()
	client, err := nwc.NewClient(c, connection, opts...)
	if err != nil {
		fail("Error creating wallet client: %v", err)
	}
	defer client.Close()

	var result any
	switch nwc.Capability(method) {
	case nwc.GetInfo:
		result, err = client.GetInfo(c)

	case nwc.GetBalance:
		result, err = client.GetBalance(c)

	case nwc.MakeInvoice:
		if len(params) < 2 {
			fail("Error: make_invoice requires amount and description")
		}
		amount, perr := strconv.ParseUint(params[0], 10, 64)
		if perr != nil {
			fail("Error parsing amount: %v", perr)
		}
		req := &nwc.MakeInvoiceParams{
			Amount:      amount,
			Description: params[1],
		}
		if len(params) > 2 {
			expiry, perr := strconv.ParseUint(params[2], 10, 32)
			if perr != nil {
				fail("Error parsing expiry: %v", perr)
			}
			req.Expiry = values.ToUint32Pointer(uint32(expiry))
		}
		result, err = client.MakeInvoice(c, req)

	case nwc.PayInvoice:
		if len(params) < 1 {
			fail("Error: pay_invoice requires an invoice")
		}
		req := &nwc.PayInvoiceParams{Invoice: params[0]}
		if len(params) > 1 {
			amount, perr := strconv.ParseUint(params[1], 10, 64)
			if perr != nil {
				fail("Error parsing amount: %v", perr)
			}
			req.Amount = values.ToUint64Pointer(amount)
		}
		result, err = client.PayInvoice(c, req)

	case nwc.LookupInvoice:
		if len(params) < 1 {
			fail("Error: lookup_invoice requires a payment_hash or invoice")
		}
		req := &nwc.LookupInvoiceParams{}
		if strings.HasPrefix(params[0], "ln") {
			req.Invoice = params[0]
		} else {
			req.PaymentHash = params[0]
		}
		result, err = client.LookupInvoice(c, req)

	case nwc.ListTransactions:
		req := &nwc.ListTransactionsParams{}
		for i := 0; i+1 < len(params); i += 2 {
			name, value := params[i], params[i+1]
			switch name {
			case "from":
				v, perr := strconv.ParseUint(value, 10, 64)
				if perr != nil {
					fail("Error parsing from: %v", perr)
				}
				req.From = v
			case "until":
				v, perr := strconv.ParseUint(value, 10, 64)
				if perr != nil {
					fail("Error parsing until: %v", perr)
				}
				req.To = v
			case "limit":
				v, perr := strconv.ParseUint(value, 10, 16)
				if perr != nil {
					fail("Error parsing limit: %v", perr)
				}
				req.Limit = uint16(v)
			case "offset":
				v, perr := strconv.ParseUint(value, 10, 32)
				if perr != nil {
					fail("Error parsing offset: %v", perr)
				}
				req.Offset = uint32(v)
			case "unpaid":
				req.Unpaid = value == "true"
			case "type":
				req.Type = value
			default:
				fail("Unknown parameter: %s", name)
			}
		}
		result, err = client.ListTransactions(c, req)

	case "service_info":
		result, err = client.GetWalletServiceInfo(c)

	default:
		fmt.Fprintf(os.Stderr, "Error: Unsupported method: %s\n", method)
		printUsage()
	}

	if err != nil {
		fail("Error executing %s: %v", method, err)
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fail("Error rendering result: %v", err)
	}
	fmt.Println(string(out))
}
