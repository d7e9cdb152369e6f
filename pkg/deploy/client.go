package deploy

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Client submits contract bundles to a chain node over JSON-RPC.
type Client struct {
	url   string
	httpc *http.Client
}

// NewClient returns a client for the given node URL.
func NewClient(url string) *Client {
	return &Client{
		url:   url,
		httpc: &http.Client{Timeout: 30 * time.Second},
	}
}

// Receipt is what the node returns for an accepted deployment.
type Receipt struct {
	TxHash  string
	CodeCID string
}

type rpcRequest struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      int          `json:"id"`
	Method  string       `json:"method"`
	Params  deployParams `json:"params"`
}

type deployParams struct {
	Contract  string `json:"contract"`
	ChainID   uint64 `json:"chain_id"`
	CodeCID   string `json:"code_cid"`
	Bundle    string `json:"bundle"`
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
}

// Deploy signs the bundle and submits it to the node.
func (c *Client) Deploy(ctx context.Context, b *Bundle, kp *KeyPair, chainID uint64) (*Receipt, error) {
	codeCID, err := b.CID()
	if err != nil {
		return nil, err
	}
	encoded := b.Encode()
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "chain_deployContract",
		Params: deployParams{
			Contract:  b.Contract,
			ChainID:   chainID,
			CodeCID:   codeCID,
			Bundle:    base64.StdEncoding.EncodeToString(encoded),
			Signature: base64.StdEncoding.EncodeToString(kp.Sign(b)),
			PublicKey: base64.StdEncoding.EncodeToString(kp.Public),
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "could not build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(err, "could not reach node at %s", c.url)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "could not read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("node returned HTTP %d", resp.StatusCode)
	}
	if msg := gjson.GetBytes(respBody, "error.message"); msg.Exists() {
		return nil, errors.Errorf("node rejected deployment: %s", msg.String())
	}
	txHash := gjson.GetBytes(respBody, "result.tx_hash")
	if !txHash.Exists() {
		return nil, errors.New("node response is missing result.tx_hash")
	}
	return &Receipt{TxHash: txHash.String(), CodeCID: codeCID}, nil
}
