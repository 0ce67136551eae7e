package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/helipad/internal/metrics"
	"github.com/dgnsrekt/helipad/internal/poller"
)

func indexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Catch the database up with the node once and print the watermarks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context())
		},
	}
}

func runIndex(ctx context.Context) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	node, err := connectNode(ctx)
	if err != nil {
		return err
	}
	defer node.Close()

	m := metrics.New()
	decoder, err := newDecoder(m)
	if err != nil {
		return err
	}

	p := poller.New(poller.Config{
		BatchSize: uint64(cfg.Poller.BatchSize),
	}, node, st, decoder, nil, m, logger.Named("poller"))

	// Each cycle moves every watermark forward by at most one batch; stop
	// once neither moves.
	var invoices, payments uint64
	for cycle := 1; ; cycle++ {
		if err := p.Cycle(ctx); err != nil {
			return fmt.Errorf("cycle %d: %w", cycle, err)
		}

		nextInvoices, err := st.LastBoostIndex(ctx)
		if err != nil {
			return err
		}
		nextPayments, err := st.LastPaymentIndex(ctx)
		if err != nil {
			return err
		}

		logger.Debug("index cycle complete",
			zap.Int("cycle", cycle),
			zap.Uint64("invoices", nextInvoices),
			zap.Uint64("payments", nextPayments),
		)
		if nextInvoices == invoices && nextPayments == payments {
			break
		}
		invoices, payments = nextInvoices, nextPayments
	}

	replies, err := st.LastSentIndex(ctx)
	if err != nil {
		return err
	}
	balance, err := st.WalletBalance(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("invoices: %d\npayments: %d\nreplies:  %d\nbalance:  %d sats\n", invoices, payments, replies, balance)
	return nil
}
