package testaide

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/ethfleet/snapboot/snapboot/common/hexutil"
)

// FakeEthNode is an httptest JSON-RPC server impersonating an execution
// client. Tests move its head and flip its sync flag between polls.
type FakeEthNode struct {
	mu        sync.Mutex
	head      uint64
	syncing   bool
	version   string
	networkID string
	down      bool
	server    *httptest.Server
}

func NewFakeEthNode(version string) *FakeEthNode {
	node := &FakeEthNode{version: version, networkID: "11155111"}
	node.server = httptest.NewServer(http.HandlerFunc(node.handle))
	return node
}

func (n *FakeEthNode) URL() string { return n.server.URL }

func (n *FakeEthNode) Close() { n.server.Close() }

func (n *FakeEthNode) SetHead(height uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.head = height
}

func (n *FakeEthNode) SetSyncing(syncing bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.syncing = syncing
}

// SetNetworkID overrides the net_version result, by default sepolia's.
func (n *FakeEthNode) SetNetworkID(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.networkID = id
}

// SetDown makes every call fail with a server error until re-enabled.
func (n *FakeEthNode) SetDown(down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down = down
}

func (n *FakeEthNode) handle(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	head, syncing, version, networkID, down := n.head, n.syncing, n.version, n.networkID, n.down
	n.mu.Unlock()

	if down {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	var request struct {
		Id     any    `json:"id"`
		Method string `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var result any
	switch request.Method {
	case "eth_blockNumber":
		result = hexutil.EncodeUint64(head)
	case "eth_syncing":
		if syncing {
			result = map[string]string{
				"startingBlock": hexutil.EncodeUint64(0),
				"currentBlock":  hexutil.EncodeUint64(head),
				"highestBlock":  hexutil.EncodeUint64(head + 1000),
			}
		} else {
			result = false
		}
	case "web3_clientVersion":
		result = version
	case "net_version":
		result = networkID
	case "net_peerCount":
		result = hexutil.EncodeUint64(8)
	default:
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      request.Id,
			"error":   map[string]any{"code": -32601, "message": "method not found"},
		})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      request.Id,
		"result":  result,
	})
}
