package app

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/arbguard/business/settlement/domain"
	"github.com/fd1az/arbguard/internal/apperror"
)

const (
	submitInitialInterval = 500 * time.Millisecond
	submitMaxInterval     = 5 * time.Second
)

func (e *Engine) swapRequest(req domain.SettlementRequest, amount *big.Int) SwapRequest {
	return SwapRequest{
		ChainID:   req.ChainID,
		TokenIn:   req.SourceToken,
		TokenOut:  req.TargetToken,
		Amount:    amount,
		Recipient: req.User,
	}
}

// submit broadcasts tx, retrying transport failures with exponential
// backoff.
func (e *Engine) submit(ctx context.Context, chainID uint64, tx *types.Transaction) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = submitInitialInterval
	b.MaxInterval = submitMaxInterval

	tries := e.exec.SubmitRetries + 1
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := e.gateway.SendTransaction(ctx, chainID, tx); err != nil {
			// A retry after a lost response finds the transaction in the pool.
			if strings.Contains(err.Error(), "already known") {
				return struct{}{}, nil
			}
			if apperror.HasCode(err, apperror.CodeChainNotConfigured) {
				return struct{}{}, backoff.Permanent(err)
			}
			e.logger.Warn(ctx, "transaction submission failed, retrying",
				"chain_id", chainID,
				"tx_hash", tx.Hash().Hex(),
				"error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
	)
	return err
}

// confirm waits for the configured confirmations of tx.
func (e *Engine) confirm(ctx context.Context, chainID uint64, tx *types.Transaction, amount *big.Int, private bool) (domain.ExecutedTx, error) {
	r, err := e.gateway.WaitForConfirmations(ctx, chainID, tx.Hash(), e.rules.MinConfirmations, e.exec.ConfirmPoll)
	if err != nil {
		return domain.ExecutedTx{}, err
	}
	return domain.ExecutedTx{
		Hash:        tx.Hash(),
		Amount:      amount,
		BlockNumber: r.BlockNumber.Uint64(),
		GasUsed:     r.GasUsed,
		Private:     private,
	}, nil
}

func (e *Engine) buildSubmitConfirm(ctx context.Context, req domain.SettlementRequest, amount *big.Int) (domain.ExecutedTx, error) {
	tx, err := e.builder.BuildSwap(ctx, e.swapRequest(req, amount))
	if err != nil {
		return domain.ExecutedTx{}, err
	}
	if err := e.submit(ctx, req.ChainID, tx); err != nil {
		return domain.ExecutedTx{}, err
	}
	return e.confirm(ctx, req.ChainID, tx, amount, false)
}

// executeStandard sends the whole amount in one transaction.
func (e *Engine) executeStandard(ctx context.Context, req domain.SettlementRequest, res *domain.SettlementResult) error {
	done, err := e.buildSubmitConfirm(ctx, req, req.Amount)
	if err != nil {
		return err
	}
	res.Transactions = append(res.Transactions, done)
	return nil
}

// executeSplit sends the parts one after another, each confirmed before
// the interval to the next starts.
func (e *Engine) executeSplit(ctx context.Context, req domain.SettlementRequest, s domain.SettlementStrategy, res *domain.SettlementResult) error {
	parts := domain.SplitAmount(req.Amount, s.Parts)
	sent := 0
	for i, amount := range parts {
		if amount.Sign() == 0 {
			continue
		}
		if sent > 0 {
			if err := e.sleep(ctx, s.Interval()); err != nil {
				return err
			}
		}

		done, err := e.buildSubmitConfirm(ctx, req, amount)
		if err != nil {
			return fmt.Errorf("part %d of %d: %w", i+1, len(parts), err)
		}
		res.Transactions = append(res.Transactions, done)
		sent++

		e.logger.Info(ctx, "split part confirmed",
			"chain_id", req.ChainID,
			"part", i+1,
			"parts", len(parts),
			"tx_hash", done.Hash.Hex())
	}
	return nil
}

// executeBatched builds every part first so nonces are consecutive, then
// submits and confirms them concurrently.
func (e *Engine) executeBatched(ctx context.Context, req domain.SettlementRequest, s domain.SettlementStrategy, res *domain.SettlementResult) error {
	parts := domain.SplitAmount(req.Amount, s.BatchSize)

	type job struct {
		tx     *types.Transaction
		amount *big.Int
	}
	jobs := make([]job, 0, len(parts))
	for _, amount := range parts {
		if amount.Sign() == 0 {
			continue
		}
		tx, err := e.builder.BuildSwap(ctx, e.swapRequest(req, amount))
		if err != nil {
			return err
		}
		jobs = append(jobs, job{tx: tx, amount: amount})
	}

	done := make([]domain.ExecutedTx, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		g.Go(func() error {
			if err := e.submit(gctx, req.ChainID, j.tx); err != nil {
				return err
			}
			var err error
			done[i], err = e.confirm(gctx, req.ChainID, j.tx, j.amount, false)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	res.Transactions = append(res.Transactions, done...)
	return nil
}

// executePrivate scores the swap for MEV, sends it through the private
// relay with the selected protections and waits for it on chain.
func (e *Engine) executePrivate(ctx context.Context, req domain.SettlementRequest, res *domain.SettlementResult) error {
	assessment, err := e.mev.Assess(ctx, req.ChainID, req.SourceToken, req.TargetToken, req.Amount)
	if err != nil {
		return err
	}

	tx, err := e.builder.BuildSwap(ctx, e.swapRequest(req, req.Amount))
	if err != nil {
		return err
	}

	protected, err := e.mev.Protect(ctx, req.ChainID, tx, assessment)
	if err != nil {
		return err
	}
	res.Protected = protected

	done, err := e.confirm(ctx, req.ChainID, tx, req.Amount, true)
	if err != nil {
		return err
	}
	res.Transactions = append(res.Transactions, done)
	return nil
}
