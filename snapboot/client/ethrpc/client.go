package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethfleet/snapboot/snapboot/common"
	"github.com/ethfleet/snapboot/snapboot/common/hexutil"
	"github.com/rs/zerolog"
)

var (
	ErrFailedToMarshalRequest    = errors.New("failed to marshal request")
	ErrFailedToSendRequest       = errors.New("failed to send request")
	ErrUnexpectedStatusCode      = errors.New("unexpected status code")
	ErrFailedToReadResponse      = errors.New("failed to read response")
	ErrFailedToUnmarshalResponse = errors.New("failed to unmarshal response")
	ErrRPCError                  = errors.New("rpc error")
)

const (
	Web3_clientVersion = "web3_clientVersion"
	Net_version        = "net_version"
	Net_peerCount      = "net_peerCount"
	Eth_blockNumber    = "eth_blockNumber"
	Eth_syncing        = "eth_syncing"
)

const defaultTimeout = 10 * time.Second

// Client speaks the health/sync-status subset of the Ethereum JSON-RPC
// interface that every supported execution client exposes.
type Client struct {
	endpoint string
	seqno    atomic.Uint64
	client   http.Client
	headers  map[string]string
	logger   zerolog.Logger
	retrier  *common.RetryRunner
}

type Request struct {
	Version string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	Id      uint64 `json:"id"`
}

func NewRequest(id uint64, method string, params []any) *Request {
	return &Request{
		Version: "2.0",
		Method:  method,
		Id:      id,
		Params:  params,
	}
}

func NewClient(endpoint string, logger zerolog.Logger, options ...Option) *Client {
	cfg := &config{timeout: defaultTimeout}
	for _, option := range options {
		option(cfg)
	}

	client := &Client{
		endpoint: endpoint,
		client:   http.Client{Timeout: cfg.timeout},
		headers:  cfg.headers,
		logger:   logger,
	}
	if cfg.retry != nil {
		retrier := common.NewRetryRunner(*cfg.retry, logger)
		client.retrier = &retrier
	}
	return client
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) getNextId() uint64 {
	return c.seqno.Add(1)
}

func (c *Client) newRequest(method string, params ...any) *Request {
	return NewRequest(c.getNextId(), method, params)
}

func (c *Client) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	request := c.newRequest(method, params...)
	if c.retrier == nil {
		return c.performRequest(ctx, request)
	}

	var result json.RawMessage
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = c.performRequest(ctx, request)
		return err
	})
	return result, err
}

// PlainTextCall sends request as is and returns raw output.
func (c *Client) PlainTextCall(ctx context.Context, requestBody []byte) (json.RawMessage, error) {
	c.logger.Trace().RawJSON("request", requestBody).Send()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToSendRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToReadResponse, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d: %s", ErrUnexpectedStatusCode, resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) performRequest(ctx context.Context, request *Request) (json.RawMessage, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToMarshalRequest, err)
	}

	body, err := c.PlainTextCall(ctx, requestBody)
	if err != nil {
		return nil, err
	}

	var rpcResponse map[string]json.RawMessage
	if err := json.Unmarshal(body, &rpcResponse); err != nil {
		c.logger.Debug().Str("response", string(body)).Msg("failed to unmarshal response")
		return nil, fmt.Errorf("%w: %w", ErrFailedToUnmarshalResponse, err)
	}
	c.logger.Trace().RawJSON("response", body).Send()

	if errorMsg, ok := rpcResponse["error"]; ok {
		return nil, fmt.Errorf("%w: %s", ErrRPCError, errorMsg)
	}

	return rpcResponse["result"], nil
}

// RawCall sends a request with the given method and parameters and
// returns the result as json.RawMessage.
func (c *Client) RawCall(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	return c.call(ctx, method, params...)
}

// ClientVersion returns the client's version string. It doubles as the
// cheapest possible liveness probe.
func (c *Client) ClientVersion(ctx context.Context) (string, error) {
	res, err := c.call(ctx, Web3_clientVersion)
	if err != nil {
		return "", err
	}

	var version string
	if err := json.Unmarshal(res, &version); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFailedToUnmarshalResponse, err)
	}
	return version, nil
}

// NetVersion returns the network id the client is configured for.
func (c *Client) NetVersion(ctx context.Context) (string, error) {
	res, err := c.call(ctx, Net_version)
	if err != nil {
		return "", err
	}

	var version string
	if err := json.Unmarshal(res, &version); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFailedToUnmarshalResponse, err)
	}
	return version, nil
}

func (c *Client) PeerCount(ctx context.Context) (uint64, error) {
	return c.callQuantity(ctx, Net_peerCount)
}

// BlockNumber returns the client's latest known block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.callQuantity(ctx, Eth_blockNumber)
}

func (c *Client) callQuantity(ctx context.Context, method string) (uint64, error) {
	res, err := c.call(ctx, method)
	if err != nil {
		return 0, err
	}

	var value hexutil.Uint64
	if err := json.Unmarshal(res, &value); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFailedToUnmarshalResponse, err)
	}
	return uint64(value), nil
}

// SyncStatus is the object form of the eth_syncing result.
type SyncStatus struct {
	StartingBlock hexutil.Uint64 `json:"startingBlock"`
	CurrentBlock  hexutil.Uint64 `json:"currentBlock"`
	HighestBlock  hexutil.Uint64 `json:"highestBlock"`
}

// SyncStatus returns nil when the client reports that it is not syncing.
// The distinction between "not syncing" and "syncing from zero" matters
// to callers, hence the pointer result instead of a zero struct.
func (c *Client) SyncStatus(ctx context.Context) (*SyncStatus, error) {
	res, err := c.call(ctx, Eth_syncing)
	if err != nil {
		return nil, err
	}

	var syncing bool
	if err := json.Unmarshal(res, &syncing); err == nil {
		if syncing {
			return nil, fmt.Errorf("%w: eth_syncing returned true without progress object", ErrFailedToUnmarshalResponse)
		}
		return nil, nil
	}

	status := &SyncStatus{}
	if err := json.Unmarshal(res, status); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToUnmarshalResponse, err)
	}
	return status, nil
}
