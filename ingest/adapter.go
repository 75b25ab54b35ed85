// Package ingest pulls raw balance and transaction facts out of
// per-protocol adapters and lands them in the store. Adapters are
// external programs speaking newline-delimited JSON on stdout; the
// pipeline validates strictly and persists insert-ignore, so re-running
// a range is always safe and a bad batch persists nothing.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BalanceRecord is one TVL snapshot row as emitted by an adapter.
type BalanceRecord struct {
	UserAddress  string `json:"userAddress"`
	TokenAddress string `json:"tokenAddress"`
	PoolAddress  string `json:"poolAddress"`
	Balance      string `json:"balance"`
	BlockNumber  int64  `json:"blockNumber"`
	Timestamp    int64  `json:"timestamp"`
}

// TransactionRecord is one transaction event row as emitted by an
// adapter. Price is the token's USD price at execution time, supplied
// by the adapter's own source.
type TransactionRecord struct {
	Timestamp       int64   `json:"timestamp"`
	UserAddress     string  `json:"userAddress"`
	ContractAddress string  `json:"contractAddress"`
	TokenAddress    string  `json:"tokenAddress"`
	Decimals        int32   `json:"decimals"`
	Price           float64 `json:"price"`
	Quantity        string  `json:"quantity"`
	TxHash          string  `json:"txHash"`
	Nonce           int64   `json:"nonce"`
	BlockNumber     int64   `json:"blockNumber"`
}

// Adapter produces raw fact rows for a project.
type Adapter interface {
	UserTVL(ctx context.Context, blockNumber int64) ([]BalanceRecord, error)
	UserTransactions(ctx context.Context, startBlock, endBlock int64) ([]TransactionRecord, error)
}

// CommandAdapter runs the project's adapter command as a subprocess and
// decodes its NDJSON output. Every run is bounded by a timeout; a hung
// adapter fails the unit, which stays pending for the next pass.
type CommandAdapter struct {
	projectName string
	command     string
	args        []string
	timeout     time.Duration
	logger      *zap.Logger
}

func NewCommandAdapter(projectName, command string, args []string, timeout time.Duration, logger *zap.Logger) *CommandAdapter {
	return &CommandAdapter{
		projectName: projectName,
		command:     command,
		args:        args,
		timeout:     timeout,
		logger:      logger,
	}
}

// buildArgs copies the configured base arguments so successive
// invocations never share a backing array.
func (a *CommandAdapter) buildArgs(extra ...string) []string {
	args := make([]string, 0, len(a.args)+len(extra))
	args = append(args, a.args...)
	return append(args, extra...)
}

func (a *CommandAdapter) UserTVL(ctx context.Context, blockNumber int64) ([]BalanceRecord, error) {
	var records []BalanceRecord
	err := a.run(ctx, a.buildArgs("tvl", "--block", strconv.FormatInt(blockNumber, 10)), func(dec *jsoniter.Decoder) error {
		var r BalanceRecord
		if err := dec.Decode(&r); err != nil {
			return err
		}
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (a *CommandAdapter) UserTransactions(ctx context.Context, startBlock, endBlock int64) ([]TransactionRecord, error) {
	var records []TransactionRecord
	err := a.run(ctx, a.buildArgs("tx",
		"--from", strconv.FormatInt(startBlock, 10),
		"--to", strconv.FormatInt(endBlock, 10)), func(dec *jsoniter.Decoder) error {
		var r TransactionRecord
		if err := dec.Decode(&r); err != nil {
			return err
		}
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (a *CommandAdapter) run(ctx context.Context, args []string, decode func(*jsoniter.Decoder) error) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open adapter stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start adapter %q: %w", a.command, err)
	}

	dec := json.NewDecoder(stdout)
	var decodeErr error
	for {
		if err := decode(dec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			decodeErr = fmt.Errorf("decode adapter output: %w", err)
			break
		}
	}
	waitErr := cmd.Wait()
	if decodeErr != nil {
		return decodeErr
	}
	if waitErr != nil {
		a.logger.Warn("adapter failed",
			zap.String("project", a.projectName),
			zap.String("stderr", stderr.String()))
		if ctx.Err() != nil {
			return fmt.Errorf("adapter %q for project %q: %w", a.command, a.projectName, ctx.Err())
		}
		return fmt.Errorf("adapter %q for project %q: %w", a.command, a.projectName, waitErr)
	}
	return nil
}
