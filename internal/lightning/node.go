package lightning

import (
	"context"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// lnd can return large payment lists.
const maxRecvMsgSize = 200 * 1024 * 1024

// Node is the subset of the lnd RPC surface this service consumes.
type Node interface {
	GetInfo(ctx context.Context) (*lnrpc.GetInfoResponse, error)
	ChannelBalance(ctx context.Context) (int64, error)
	ListInvoices(ctx context.Context, fromIndex, max uint64) ([]*lnrpc.Invoice, error)
	ListPayments(ctx context.Context, fromIndex, max uint64) ([]*lnrpc.Payment, error)
	SendPayment(ctx context.Context, req *lnrpc.SendRequest) (*lnrpc.SendResponse, error)
	NodeAlias(ctx context.Context, pubkey string) (string, error)
}

// NodeConfig holds the connection settings for an lnd node.
type NodeConfig struct {
	Address      string
	CertPath     string
	MacaroonPath string
	Timeout      time.Duration // per call
	SendTimeout  time.Duration // per SendPayment, covers every route attempt
}

// DefaultSendTimeout bounds a keysend when NodeConfig.SendTimeout is unset.
const DefaultSendTimeout = 5 * time.Minute

// LndNode talks to lnd over gRPC.
type LndNode struct {
	conn    *grpc.ClientConn
	client      lnrpc.LightningClient
	timeout     time.Duration
	sendTimeout time.Duration
	logger      *zap.Logger
}

var _ Node = (*LndNode)(nil)

// macaroonCredential attaches the hex-encoded macaroon to every call.
type macaroonCredential string

func (m macaroonCredential) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"macaroon": string(m)}, nil
}

func (m macaroonCredential) RequireTransportSecurity() bool { return true }

// Connect reads the TLS certificate and macaroon, dials the node and
// checks it answers GetInfo. Any failure here is a startup failure.
func Connect(ctx context.Context, cfg NodeConfig, logger *zap.Logger) (*LndNode, error) {
	cert, err := os.ReadFile(cfg.CertPath)
	if err != nil {
		return nil, fmt.Errorf("reading tls cert %s: %w", cfg.CertPath, err)
	}
	macaroon, err := os.ReadFile(cfg.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("reading macaroon %s: %w", cfg.MacaroonPath, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(cert) {
		return nil, errors.New("tls cert contains no usable certificate")
	}

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(pool, "")),
		grpc.WithPerRPCCredentials(macaroonCredential(hex.EncodeToString(macaroon))),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxRecvMsgSize)),
	)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", cfg.Address, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	sendTimeout := cfg.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	node := &LndNode{
		conn:        conn,
		client:      lnrpc.NewLightningClient(conn),
		timeout:     timeout,
		sendTimeout: sendTimeout,
		logger:      logger,
	}

	info, err := node.GetInfo(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrNodeUnavailable, cfg.Address, err)
	}

	logger.Info("connected to lnd",
		zap.String("address", cfg.Address),
		zap.String("alias", info.Alias),
		zap.String("pubkey", info.IdentityPubkey),
		zap.String("version", info.Version),
		zap.Uint32("blockHeight", info.BlockHeight),
	)

	return node, nil
}

func (n *LndNode) Close() error {
	return n.conn.Close()
}

func (n *LndNode) GetInfo(ctx context.Context) (*lnrpc.GetInfoResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	return n.client.GetInfo(ctx, &lnrpc.GetInfoRequest{})
}

// ChannelBalance returns the local channel balance in satoshis.
func (n *LndNode) ChannelBalance(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	resp, err := n.client.ChannelBalance(ctx, &lnrpc.ChannelBalanceRequest{})
	if err != nil {
		return 0, fmt.Errorf("channel balance: %w", err)
	}
	if resp.LocalBalance == nil {
		return 0, nil
	}
	return int64(resp.LocalBalance.Sat), nil
}

// ListInvoices returns up to max invoices with an add index above fromIndex.
func (n *LndNode) ListInvoices(ctx context.Context, fromIndex, max uint64) ([]*lnrpc.Invoice, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	resp, err := n.client.ListInvoices(ctx, &lnrpc.ListInvoiceRequest{
		IndexOffset:    fromIndex,
		NumMaxInvoices: max,
	})
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return resp.Invoices, nil
}

// ListPayments returns up to max completed payments with a payment index
// above fromIndex.
func (n *LndNode) ListPayments(ctx context.Context, fromIndex, max uint64) ([]*lnrpc.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	resp, err := n.client.ListPayments(ctx, &lnrpc.ListPaymentsRequest{
		IndexOffset: fromIndex,
		MaxPayments: max,
	})
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return resp.Payments, nil
}

// SendPayment waits up to the send timeout for lnd to finish every route
// attempt. A deadline hit here leaves the payment in flight on the node.
func (n *LndNode) SendPayment(ctx context.Context, req *lnrpc.SendRequest) (*lnrpc.SendResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, n.sendTimeout)
	defer cancel()

	return n.client.SendPaymentSync(ctx, req)
}

// NodeAlias looks up the alias a node announces to the network.
func (n *LndNode) NodeAlias(ctx context.Context, pubkey string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	info, err := n.client.GetNodeInfo(ctx, &lnrpc.NodeInfoRequest{PubKey: pubkey})
	if err != nil {
		return "", fmt.Errorf("node info: %w", err)
	}
	return info.GetNode().GetAlias(), nil
}
