package worker

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HeadSource reports the chain's current head block number.
type HeadSource interface {
	ChainHead(ctx context.Context) (int64, error)
}

// RPCHeadSource asks a JSON-RPC endpoint via eth_blockNumber.
type RPCHeadSource struct {
	url    string
	client *http.Client
}

func NewRPCHeadSource(url string) *RPCHeadSource {
	return &RPCHeadSource{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *RPCHeadSource) ChainHead(ctx context.Context) (int64, error) {
	var head int64
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url,
			bytes.NewBufferString(`{"jsonrpc":"2.0","method":"eth_blockNumber","params":[],"id":1}`))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %s", resp.Status)
		}
		var body struct {
			Result string `json:"result"`
			Error  *struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return err
		}
		if body.Error != nil {
			return fmt.Errorf("rpc error %d: %s", body.Error.Code, body.Error.Message)
		}
		n, err := strconv.ParseInt(strings.TrimPrefix(body.Result, "0x"), 16, 64)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("parse block number %q: %w", body.Result, err))
		}
		head = n
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)); err != nil {
		return 0, fmt.Errorf("fetch chain head: %w", err)
	}
	return head, nil
}
