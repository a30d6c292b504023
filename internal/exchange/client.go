// Package exchange implements the JSON-RPC-over-WebSocket client the bot
// uses to read order books and place orders against the DEX node.
//
// The wire protocol is request {"id","method","params"}, response
// {"id","result"} or an error payload containing a message string. Unlike
// the teacher's push-style WSFeed (exchange/ws.go), this is a
// request/response RPC client: every call blocks for exactly one matching
// reply, so a connection carries at most one in-flight call at a time —
// conn.mu, held across write+read, is what enforces that.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"rin-arb/pkg/types"
)

// rpcRequest is the outbound envelope.
type rpcRequest struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// rpcResponse is the inbound envelope. Error is non-nil iff the node
// rejected the call; Result is unset in that case.
type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return e.Message }

// Conn wraps a single websocket connection and serializes request/response
// pairs over it. It has no reconnect logic of its own — that belongs to the
// ConnPool (pool.go) — a Conn simply reports ErrClientConnectionError when
// the transport breaks.
type Conn struct {
	url     string
	timeout time.Duration

	mu     sync.Mutex
	ws     *websocket.Conn
	nextID atomic.Int64
}

// dialConn opens a single websocket connection to url. No retry: callers
// (ConnPool) own backoff.
func dialConn(ctx context.Context, url string, timeout time.Duration) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrClientConnectionError, url, err)
	}
	return &Conn{url: url, timeout: timeout, ws: ws}, nil
}

// Call issues one JSON-RPC request and waits for the matching response.
// result, if non-nil, receives the unmarshaled result payload.
func (c *Conn) Call(ctx context.Context, method string, params []any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws == nil {
		return fmt.Errorf("%w: connection closed", ErrClientConnectionError)
	}

	id := c.nextID.Add(1)
	req := rpcRequest{ID: id, Method: method, Params: params}

	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteJSON(req); err != nil {
		c.closeLocked()
		return fmt.Errorf("%w: write: %v", ErrClientConnectionError, err)
	}

	c.ws.SetReadDeadline(deadline)
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		c.closeLocked()
		return fmt.Errorf("%w: read: %v", ErrClientConnectionError, err)
	}

	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrClientConnectionError, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil {
		return nil
	}
	if len(resp.Result) == 0 {
		return ErrLookupFailed
	}
	return json.Unmarshal(resp.Result, result)
}

// Close releases the underlying socket. Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Conn) closeLocked() error {
	if c.ws == nil {
		return nil
	}
	err := c.ws.Close()
	c.ws = nil
	return err
}

// Client is the high-level ExchangeClient: get_order_book, list_assets
// (with name -> id session caching), get_asset_info, get_account_balance,
// create_market_order, mapped onto the raw rpc Conn.
type Client struct {
	conn *Conn
	rl   *RateLimiter

	mu        sync.Mutex
	idByName  map[string]string
	precision map[string]int
}

// NewClient wraps an already-dialed Conn (typically checked out of a
// ConnPool) in the domain-level RPC surface.
func NewClient(conn *Conn) *Client {
	return &Client{
		conn:      conn,
		rl:        NewRateLimiter(),
		idByName:  make(map[string]string),
		precision: make(map[string]int),
	}
}

// ResolveAssetID resolves a human asset symbol to its opaque exchange id,
// caching the mapping for the lifetime of the client.
func (c *Client) ResolveAssetID(ctx context.Context, symbol string) (string, error) {
	c.mu.Lock()
	if id, ok := c.idByName[symbol]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	var assets []struct {
		ID        string `json:"id"`
		Precision int    `json:"precision"`
	}
	if err := c.conn.Call(ctx, "list_assets", []any{symbol, 1}, &assets); err != nil {
		return "", err
	}
	if len(assets) == 0 {
		return "", fmt.Errorf("%w: symbol %s", ErrLookupFailed, symbol)
	}

	c.mu.Lock()
	c.idByName[symbol] = assets[0].ID
	c.precision[symbol] = assets[0].Precision
	c.mu.Unlock()

	return assets[0].ID, nil
}

// GetAssetInfo returns an asset's exchange-declared precision, sharing the
// name->id session cache with ResolveAssetID.
func (c *Client) GetAssetInfo(ctx context.Context, symbol string) (types.Asset, error) {
	c.mu.Lock()
	precision, known := c.precision[symbol]
	c.mu.Unlock()
	if known {
		id, err := c.ResolveAssetID(ctx, symbol)
		if err != nil {
			return types.Asset{}, err
		}
		return types.Asset{Symbol: symbol, ID: id, Precision: precision}, nil
	}

	var info struct {
		ID        string `json:"id"`
		Precision int    `json:"precision"`
	}
	if err := c.conn.Call(ctx, "get_asset", []any{symbol}, &info); err != nil {
		return types.Asset{}, err
	}
	if info.ID == "" {
		return types.Asset{}, fmt.Errorf("%w: asset %s", ErrLookupFailed, symbol)
	}

	c.mu.Lock()
	c.idByName[symbol] = info.ID
	c.precision[symbol] = info.Precision
	c.mu.Unlock()

	return types.Asset{Symbol: symbol, ID: info.ID, Precision: info.Precision}, nil
}

// GetOrderBook fetches up to limit ask-side levels for a pair, keyed by
// already-resolved base/quote ids.
func (c *Client) GetOrderBook(ctx context.Context, baseID, quoteID string, limit int) (types.DepthSlice, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	var raw []struct {
		Price    string `json:"price"`
		BaseVol  string `json:"base_volume"`
		QuoteVol string `json:"quote_volume"`
	}
	if err := c.conn.Call(ctx, "get_order_book", []any{baseID, quoteID, limit}, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrEmptyOrdersList
	}

	depth := make(types.DepthSlice, 0, len(raw))
	for _, lvl := range raw {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", lvl.Price, err)
		}
		baseVol, err := decimal.NewFromString(lvl.BaseVol)
		if err != nil {
			return nil, fmt.Errorf("parse base_volume %q: %w", lvl.BaseVol, err)
		}
		quoteVol, err := decimal.NewFromString(lvl.QuoteVol)
		if err != nil {
			return nil, fmt.Errorf("parse quote_volume %q: %w", lvl.QuoteVol, err)
		}
		depth = append(depth, types.OrderLevel{Price: price, BaseVol: baseVol, QuoteVol: quoteVol})
	}
	return depth, nil
}

// GetAccountBalance returns the raw integer balance (in the asset's
// smallest unit) of accountID for assetSymbol.
func (c *Client) GetAccountBalance(ctx context.Context, accountID, assetSymbol string) (int64, error) {
	var balances map[string]int64
	if err := c.conn.Call(ctx, "get_account_balances", []any{accountID, []string{assetSymbol}}, &balances); err != nil {
		return 0, err
	}
	return balances[assetSymbol], nil
}

// CreateMarketOrder submits a fill-or-kill market order selling sellAmount
// of sellAsset for receiveAmount of receiveAsset. Decimal amounts are
// rendered via decimal.Decimal.String(), which never emits scientific
// notation and carries no more trailing zeros than the value needs.
func (c *Client) CreateMarketOrder(ctx context.Context, account string, sellAmount decimal.Decimal, sellAsset string, receiveAmount decimal.Decimal, receiveAsset string, expiration int64, fillOrKill, broadcast bool) error {
	if err := c.rl.Order.Wait(ctx); err != nil {
		return err
	}

	params := []any{
		account,
		sellAmount.String(),
		sellAsset,
		receiveAmount.String(),
		receiveAsset,
		expiration,
		fillOrKill,
		broadcast,
	}
	pair := fmt.Sprintf("%s:%s", sellAsset, receiveAsset)
	err := c.conn.Call(ctx, "create_order", params, nil)
	if rpcErr, ok := err.(*rpcError); ok {
		return classifyOrderError(pair, receiveAsset, rpcErr)
	}
	return err
}
