package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/helipad/internal/boost"
	"github.com/dgnsrekt/helipad/internal/lightning"
	"github.com/dgnsrekt/helipad/internal/metrics"
	"github.com/dgnsrekt/helipad/internal/server"
)

type sendOptions struct {
	sender      string
	message     string
	podcast     string
	episode     string
	customKey   uint64
	customValue string
}

func sendCmd() *cobra.Command {
	var opts sendOptions

	cmd := &cobra.Command{
		Use:   "send <pubkey|lightning-address> <sats>",
		Short: "Send a keysend boost",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sats, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || sats <= 0 {
				return fmt.Errorf("invalid amount %q: must be a positive number of sats", args[1])
			}
			return runSend(cmd.Context(), args[0], sats, opts)
		},
	}

	cmd.Flags().StringVar(&opts.sender, "sender", "Anonymous", "sender name carried in the boost")
	cmd.Flags().StringVarP(&opts.message, "message", "m", "", "boost message")
	cmd.Flags().StringVar(&opts.podcast, "podcast", "", "podcast title")
	cmd.Flags().StringVar(&opts.episode, "episode", "", "episode title")
	cmd.Flags().Uint64Var(&opts.customKey, "custom-key", 0, "custom record key for the destination wallet")
	cmd.Flags().StringVar(&opts.customValue, "custom-value", "", "custom record value for the destination wallet")

	return cmd
}

func runSend(ctx context.Context, destination string, sats int64, opts sendOptions) error {
	var customKey *uint64
	var customValue *string
	if opts.customKey != 0 {
		if opts.customValue == "" {
			return errors.New("--custom-key requires --custom-value")
		}
		customKey, customValue = &opts.customKey, &opts.customValue
	}

	payload := boost.ReplyPayload{
		AppName:        server.ReplyAppName,
		AppVersion:     version,
		SenderName:     opts.sender,
		Message:        opts.message,
		Action:         "boost",
		ValueMsatTotal: sats * 1000,
	}
	if opts.podcast != "" {
		payload.Podcast = &opts.podcast
	}
	if opts.episode != "" {
		payload.Episode = &opts.episode
	}
	tlv, err := json.Marshal(payload)
	if err != nil {
		return err
	}

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

	out, err := newSender(node, metrics.New()).Send(ctx, lightning.SendRequest{
		Destination: destination,
		AmountSat:   sats,
		CustomKey:   customKey,
		CustomValue: customValue,
		Payload:     tlv,
	})
	if err != nil {
		return err
	}

	sent := out.SentRecord()
	sent.Sender = opts.sender
	sent.Message = opts.message
	sent.Podcast = opts.podcast
	sent.Episode = opts.episode

	idx, err := st.AddSentBoost(ctx, sent)
	if err != nil {
		logger.Error("payment sent but not recorded",
			zap.String("paymentHash", sent.PaymentHash),
			zap.Error(err),
		)
	} else {
		sent.Index = idx
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(sent)
}
