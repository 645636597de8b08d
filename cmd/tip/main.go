// Command tip pays a tip from the terminal. It fetches the 402 challenge,
// signs the selected payment option with a local private key, and prints the
// settlement result.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Agentokratia/tips-app/client"
	"github.com/Agentokratia/tips-app/evm"
)

func main() {
	var (
		url   = flag.String("url", "", "tip URL, e.g. https://host/api/tip?to=alice.eth&amount=1.50")
		token = flag.String("token", "", "payment token address (default: any offered option)")
		rpc   = flag.String("rpc", "", "RPC endpoint for Permit2 allowance checks (optional)")
	)
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "usage: tip -url <tip-url> [-token <address>] [-rpc <endpoint>]")
		os.Exit(2)
	}

	key := os.Getenv("TIP_PRIVATE_KEY")
	if key == "" {
		fmt.Fprintln(os.Stderr, "TIP_PRIVATE_KEY is required")
		os.Exit(2)
	}

	opts := []client.Option{client.WithToken(*token)}

	var signer *evm.PrivateKeySigner
	if *rpc != "" {
		ethClient, err := ethclient.Dial(*rpc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to %s: %v\n", *rpc, err)
			os.Exit(1)
		}
		signer, err = evm.NewPrivateKeySignerWithClient(key, ethClient)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid private key: %v\n", err)
			os.Exit(1)
		}
		opts = append(opts, client.WithContractReader(signer))
	} else {
		var err error
		signer, err = evm.NewPrivateKeySigner(key)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid private key: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	payer := client.New(signer, opts...)
	result, err := payer.SendTip(ctx, *url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "payment failed: %v\n", err)
		os.Exit(1)
	}

	if !result.Success {
		fmt.Fprintf(os.Stderr, "payment not settled: %s\n", result.ErrorReason)
		os.Exit(1)
	}
	fmt.Printf("tip settled on %s\ntransaction: %s\npayer: %s\n",
		result.Network, result.Transaction, result.Payer)
}
