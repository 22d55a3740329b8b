package sui

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"basket_swap/internal/core"
	apperrors "basket_swap/pkg/errors"
	"basket_swap/pkg/retry"
)

// DefaultPollPolicy waits up to roughly ten seconds for a submitted transaction to be indexed
var DefaultPollPolicy = retry.RetryPolicy{
	MaxAttempts:    10,
	InitialBackoff: 250 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// Executor implements core.IExecutor against a Sui full node
type Executor struct {
	rpc    *RPCClient
	poll   retry.RetryPolicy
	logger core.ILogger
}

// NewExecutor creates an executor using rpc for submission
func NewExecutor(rpc *RPCClient, logger core.ILogger) *Executor {
	return &Executor{
		rpc:    rpc,
		poll:   DefaultPollPolicy,
		logger: logger.WithField("component", "sui_executor"),
	}
}

// WithPollPolicy overrides how long sessions wait for effects
func (e *Executor) WithPollPolicy(p retry.RetryPolicy) *Executor {
	e.poll = p
	return e
}

// Acquire parses the wallet's key and checks it controls the wallet address
func (e *Executor) Acquire(ctx context.Context, w *core.Wallet) (core.ISession, error) {
	if w == nil || w.PrivateKey == "" {
		return nil, fmt.Errorf("%w: wallet has no private key", apperrors.ErrInvalidKey)
	}
	key, err := ParsePrivateKey(w.PrivateKey)
	if err != nil {
		return nil, err
	}
	addr := key.Address()
	if w.Address != "" && NormalizeAddress(w.Address) != addr {
		key.Wipe()
		return nil, fmt.Errorf("%w: wallet %s, key %s", apperrors.ErrAddressMismatch, w.Address, addr)
	}
	return &Session{
		key:     key,
		address: addr,
		rpc:     e.rpc,
		poll:    e.poll,
		logger:  e.logger.WithField("address", addr),
	}, nil
}

// Session signs with one keypair until closed
type Session struct {
	mu      sync.Mutex
	key     *Keypair
	address string
	rpc     *RPCClient
	poll    retry.RetryPolicy
	logger  core.ILogger
	closed  bool
}

func (s *Session) Address() string {
	return s.address
}

// SignAndExecute signs tx and submits it once. When the node answers without effects the
// session polls for them by digest.
func (s *Session) SignAndExecute(ctx context.Context, tx *core.Transaction, opts core.ExecuteOptions) (*core.Receipt, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("session closed")
	}
	if tx == nil || len(tx.Bytes) == 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: empty transaction", apperrors.ErrExecutionFailed)
	}
	if tx.Sender != "" && NormalizeAddress(tx.Sender) != s.address {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: transaction sender %s", apperrors.ErrAddressMismatch, tx.Sender)
	}
	sig, err := s.key.SignTransaction(tx.Bytes)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	resp, err := s.rpc.ExecuteTransactionBlock(ctx, tx.Bytes, []string{sig}, opts)
	if err != nil {
		return nil, err
	}
	if resp.Effects == nil && opts.ShowEffects {
		s.logger.Debug("Effects missing, polling", "digest", resp.Digest)
		resp, err = s.waitForEffects(ctx, resp.Digest)
		if err != nil {
			return nil, err
		}
	}

	receipt := &core.Receipt{Digest: resp.Digest}
	if resp.Effects != nil {
		receipt.Effects = *resp.Effects
	}
	s.logger.Info("Transaction executed", "digest", receipt.Digest, "status", receipt.Effects.Status.Status)
	return receipt, nil
}

func (s *Session) waitForEffects(ctx context.Context, digest string) (*TransactionResponse, error) {
	if digest == "" {
		return nil, fmt.Errorf("%w: submission returned no digest", apperrors.ErrInvalidResponse)
	}
	isPending := func(err error) bool { return errors.Is(err, apperrors.ErrTransactionPending) }

	return retry.DoWithResult(ctx, s.poll, isPending, func() (*TransactionResponse, error) {
		resp, err := s.rpc.GetTransactionBlock(ctx, digest)
		if err != nil {
			return nil, err
		}
		if resp.Effects == nil {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrTransactionPending, digest)
		}
		return resp, nil
	})
}

// Close wipes the key. Further SignAndExecute calls fail.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.key.Wipe()
	return nil
}
