package adapter

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TronClient talks to a Tron full node over its HTTP wallet API
type TronClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewTronClient creates a new Tron HTTP client
func NewTronClient(baseURL, apiKey string, timeout time.Duration) *TronClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TronClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// tronReturn is the "result" object Tron puts on trigger responses
type tronReturn struct {
	Result  bool   `json:"result"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type triggerResponse struct {
	Result         tronReturn      `json:"result"`
	ConstantResult []string        `json:"constant_result"`
	Transaction    json.RawMessage `json:"transaction"`
	Error          string          `json:"Error"`
}

// tronTransaction holds the fields of an unsigned transaction the signer needs
type tronTransaction struct {
	TxID       string `json:"txID"`
	RawDataHex string `json:"raw_data_hex"`
}

// BroadcastResult is the node's answer to broadcasttransaction
type BroadcastResult struct {
	Result  bool   `json:"result"`
	TxID    string `json:"txid"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// nodeError is returned when the node answers but refuses the request
type nodeError struct {
	Code    string
	Message string
}

func (e *nodeError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// TriggerConstant runs a read-only contract call and returns the first result word(s)
func (c *TronClient) TriggerConstant(ctx context.Context, owner, contract, selector string, parameter []byte) ([]byte, error) {
	body := map[string]interface{}{
		"owner_address":     owner,
		"contract_address":  contract,
		"function_selector": selector,
		"parameter":         hex.EncodeToString(parameter),
		"visible":           true,
	}

	var resp triggerResponse
	if err := c.post(ctx, "/wallet/triggerconstantcontract", body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &nodeError{Message: resp.Error}
	}
	if !resp.Result.Result {
		return nil, &nodeError{Code: resp.Result.Code, Message: decodeNodeMessage(resp.Result.Message)}
	}
	if len(resp.ConstantResult) == 0 {
		return nil, nil
	}

	out, err := hex.DecodeString(resp.ConstantResult[0])
	if err != nil {
		return nil, fmt.Errorf("malformed constant_result: %w", err)
	}
	return out, nil
}

// TriggerSmartContract asks the node to build an unsigned contract call
// transaction. The raw JSON is returned so it can be signed and broadcast
// without losing fields.
func (c *TronClient) TriggerSmartContract(ctx context.Context, owner, contract, selector string, parameter []byte, feeLimit int64) (json.RawMessage, error) {
	body := map[string]interface{}{
		"owner_address":     owner,
		"contract_address":  contract,
		"function_selector": selector,
		"parameter":         hex.EncodeToString(parameter),
		"fee_limit":         feeLimit,
		"call_value":        0,
		"visible":           true,
	}

	var resp triggerResponse
	if err := c.post(ctx, "/wallet/triggersmartcontract", body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &nodeError{Message: resp.Error}
	}
	if !resp.Result.Result || len(resp.Transaction) == 0 {
		return nil, &nodeError{Code: resp.Result.Code, Message: decodeNodeMessage(resp.Result.Message)}
	}
	return resp.Transaction, nil
}

// Broadcast submits a signed transaction
func (c *TronClient) Broadcast(ctx context.Context, signedTx json.RawMessage) (*BroadcastResult, error) {
	var result BroadcastResult
	if err := c.postRaw(ctx, "/wallet/broadcasttransaction", signedTx, &result); err != nil {
		return nil, err
	}
	result.Message = decodeNodeMessage(result.Message)
	return &result, nil
}

func (c *TronClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.postRaw(ctx, path, payload, out)
}

func (c *TronClient) postRaw(ctx context.Context, path string, payload []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, truncate(string(respBody), 200))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("malformed %s response: %w", path, err)
	}
	return nil
}

// decodeNodeMessage turns the hex encoded messages Tron returns into text
func decodeNodeMessage(msg string) string {
	if msg == "" {
		return msg
	}
	if b, err := hex.DecodeString(msg); err == nil {
		return string(b)
	}
	return msg
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
