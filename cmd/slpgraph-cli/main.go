// slpgraph-cli is a command-line client for querying an slpgraphd indexer.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Klingon-tech/slpgraph/config"
	"github.com/Klingon-tech/slpgraph/internal/rpcclient"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	rpcURL := ""
	network := "mainnet"

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = args[0][len("--network="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}
	if rpcURL == "" {
		rpcURL = defaultRPCURL(network)
	}

	client := rpcclient.New(rpcURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "info":
		cmdInfo(client)
	case "graphsearch":
		cmdGraphSearch(client, cmdArgs)
	case "verify":
		cmdVerify(client, cmdArgs)
	case "utxo":
		cmdUtxo(client, cmdArgs)
	case "utxo-script":
		cmdUtxoScript(client, cmdArgs)
	case "balance":
		cmdBalance(client, cmdArgs)
	case "validate":
		cmdValidate(client, cmdArgs)
	case "token":
		cmdToken(client, cmdArgs)
	case "decode-tx":
		cmdDecodeTx(cmdArgs)
	case "decode-script":
		cmdDecodeScript(cmdArgs)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: slpgraph-cli [global flags] <command> [args]

Global flags:
  --rpc <url>         RPC endpoint (default: http://127.0.0.1:8545)
  --network <net>     mainnet (default), testnet or regtest; selects the default port

Commands:
  info                            Show indexer status
  graphsearch <txid>              Print the raw transactions proving a token tx
  verify <txid>                   Fetch the graph and validate it locally
  utxo <txid:vout> [...]          Look up unspent outputs
  utxo-script <script> [limit]    List unspent outputs paying a hex script
  balance <script>                Show the satoshi balance of a hex script
  validate <txid>                 Ask the indexer whether a tx is valid
  token info <token_id>           Show token metadata
  token utxos <token_id>          List a token's unspent outputs
  decode-tx <hex>                 Decode a raw transaction offline
  decode-script <hex>             Decode an OP_RETURN token script offline
`)
}

func defaultRPCURL(network string) string {
	cfg := config.Default(config.NetworkType(network))
	return fmt.Sprintf("http://127.0.0.1:%d", cfg.RPC.Port)
}

// ── info ────────────────────────────────────────────────────────────────

func cmdInfo(client *rpcclient.Client) {
	info, err := client.Info()
	if err != nil {
		fatal("chain_getInfo: %v", err)
	}
	fmt.Printf("Height:       %d\n", info.Height)
	fmt.Printf("Tip:          %s\n", info.TipHash)
	fmt.Printf("Tokens:       %d\n", info.Tokens)
	fmt.Printf("Graph nodes:  %d\n", info.GraphNodes)
	fmt.Printf("Valid txs:    %d / %d\n", info.ValidTxs, info.KnownTxs)
	fmt.Printf("Token UTXOs:  %d\n", info.TokenUtxos)
	fmt.Printf("UTXOs:        %d confirmed, %d mempool\n", info.Utxos.Confirmed, info.Utxos.Mempool)
	fmt.Printf("Token only:   %v\n", info.TokenOnly)
}

// ── graph ───────────────────────────────────────────────────────────────

func cmdGraphSearch(client *rpcclient.Client, args []string) {
	txid := needHash(args, "graphsearch <txid>")
	txs, err := client.GraphSearch(txid)
	if err != nil {
		fatal("graph_search: %v", err)
	}
	for _, raw := range txs {
		fmt.Println(hex.EncodeToString(raw))
	}
}

func cmdVerify(client *rpcclient.Client, args []string) {
	txid := needHash(args, "verify <txid>")
	txs, err := client.GraphSearch(txid)
	if err != nil {
		fatal("graph_search: %v", err)
	}
	valid, err := verifyGraph(txid, txs)
	if err != nil {
		fatal("verify: %v", err)
	}
	fmt.Printf("Transactions: %d\n", len(txs))
	fmt.Printf("Valid:        %v\n", valid)
	if !valid {
		os.Exit(2)
	}
}

// ── utxo ────────────────────────────────────────────────────────────────

func cmdUtxo(client *rpcclient.Client, args []string) {
	if len(args) == 0 {
		fatal("Usage: slpgraph-cli utxo <txid:vout> [...]")
	}
	ops := make([]types.Outpoint, len(args))
	for i, a := range args {
		op, err := types.ParseOutpoint(a)
		if err != nil {
			fatal("%v", err)
		}
		ops[i] = op
	}
	res, err := client.UtxosByOutpoints(ops)
	if err != nil {
		fatal("utxo_getByOutpoints: %v", err)
	}
	for i, u := range res {
		if u == nil {
			fmt.Printf("%s  not found\n", args[i])
			continue
		}
		fmt.Printf("%s  value=%d height=%d script=%s\n", args[i], u.Value, u.Height, u.Script)
	}
}

func cmdUtxoScript(client *rpcclient.Client, args []string) {
	script := needScript(args, "utxo-script <script> [limit]")
	limit := 0
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			fatal("invalid limit %q", args[1])
		}
		limit = n
	}
	res, err := client.UtxosByScript(script, limit)
	if err != nil {
		fatal("utxo_getByScript: %v", err)
	}
	for _, u := range res {
		fmt.Printf("%s:%d  value=%d height=%d\n", u.TxID, u.Vout, u.Value, u.Height)
	}
	fmt.Printf("%d outputs\n", len(res))
}

func cmdBalance(client *rpcclient.Client, args []string) {
	script := needScript(args, "balance <script>")
	bal, err := client.Balance(script)
	if err != nil {
		fatal("utxo_getBalance: %v", err)
	}
	fmt.Printf("Balance: %d sat\n", bal)
}

// ── validation ──────────────────────────────────────────────────────────

func cmdValidate(client *rpcclient.Client, args []string) {
	txid := needHash(args, "validate <txid>")
	valid, err := client.Validate(txid)
	if err != nil {
		fatal("slp_validate: %v", err)
	}
	fmt.Printf("Valid: %v\n", valid)
}

// ── token ───────────────────────────────────────────────────────────────

func cmdToken(client *rpcclient.Client, args []string) {
	if len(args) < 2 {
		fatal("Usage: slpgraph-cli token <info|utxos> <token_id>")
	}
	id, err := types.HexToTokenID(args[1])
	if err != nil {
		fatal("invalid token id: %v", err)
	}
	switch args[0] {
	case "info":
		meta, err := client.Token(id)
		if err != nil {
			fatal("token_get: %v", err)
		}
		printJSON(meta)
	case "utxos":
		utxos, err := client.TokenUtxos(id)
		if err != nil {
			fatal("token_getUtxos: %v", err)
		}
		for _, u := range utxos {
			baton := ""
			if u.IsMintBaton {
				baton = "  (mint baton)"
			}
			fmt.Printf("%s  amount=%d%s\n", u.Outpoint, u.Amount, baton)
		}
	default:
		fatal("unknown token subcommand %q", args[0])
	}
}

// ── decoding ────────────────────────────────────────────────────────────

func cmdDecodeTx(args []string) {
	if len(args) < 1 {
		fatal("Usage: slpgraph-cli decode-tx <hex>")
	}
	d, err := decodeTx(args[0])
	if err != nil {
		fatal("%v", err)
	}
	printJSON(d)
}

func cmdDecodeScript(args []string) {
	if len(args) < 1 {
		fatal("Usage: slpgraph-cli decode-script <hex>")
	}
	d, err := decodeScript(args[0])
	if err != nil {
		fatal("%v", err)
	}
	printJSON(d)
}

// ── helpers ─────────────────────────────────────────────────────────────

func needHash(args []string, use string) types.Hash {
	if len(args) < 1 {
		fatal("Usage: slpgraph-cli %s", use)
	}
	h, err := types.HexToHash(args[0])
	if err != nil {
		fatal("invalid txid: %v", err)
	}
	return h
}

func needScript(args []string, use string) types.Script {
	if len(args) < 1 {
		fatal("Usage: slpgraph-cli %s", use)
	}
	s, err := types.HexToScript(args[0])
	if err != nil {
		fatal("invalid script: %v", err)
	}
	return s
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("encode: %v", err)
	}
	fmt.Println(string(out))
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
