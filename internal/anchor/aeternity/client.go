// Package aeternity anchors conversations through an æternity node's HTTP
// API. It drives pre-deployed AnchorRegistry and AccessNFT contracts via
// contract-call transactions.
package aeternity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/anithp/buddi-chain/internal/anchor/mock"
	"github.com/anithp/buddi-chain/internal/ingest"
)

// Config holds node connection and contract parameters.
type Config struct {
	NodeURL          string
	NetworkID        string
	PrivateKey       string
	RegistryContract string
	NFTContract      string
	Timeout          time.Duration
}

// Client implements ingest.Anchorer against a live node.
type Client struct {
	cfg    Config
	http   *http.Client
	clock  ingest.Clock
	logger *zap.Logger
}

// New constructs a Client. The node URL and network ID are required;
// contract addresses must reference already-deployed contracts.
func New(cfg Config, clock ingest.Clock, logger *zap.Logger) (*Client, error) {
	if cfg.NodeURL == "" {
		return nil, fmt.Errorf("node url is required")
	}
	if cfg.NetworkID == "" {
		cfg.NetworkID = "ae_uat"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		clock:  clock,
		logger: logger,
	}, nil
}

type contractCallRequest struct {
	ContractID string   `json:"contract_id"`
	Function   string   `json:"function"`
	Arguments  []string `json:"arguments"`
	NetworkID  string   `json:"network_id"`
}

type contractCallResponse struct {
	ReturnValue string `json:"return_value"`
	TxHash      string `json:"tx_hash"`
	Reason      string `json:"reason"`
}

// Anchor records the conversation's merkle root in the registry contract and
// mints an access token. Both calls go through the node; any failure is
// wrapped so the scheduler records a per-conversation failure.
func (c *Client) Anchor(ctx context.Context, conv ingest.EnrichedConversation) (ingest.AnchorMetadata, error) {
	root, err := mock.MerkleRoot(conv)
	if err != nil {
		return ingest.AnchorMetadata{}, fmt.Errorf("compute merkle root: %w", err)
	}
	tokenURI := fmt.Sprintf("https://buddi.ai/memory/%s", conv.ExternalID)

	anchorID, err := c.call(ctx, c.cfg.RegistryContract, "anchor", []string{root, conv.ExternalID})
	if err != nil {
		return ingest.AnchorMetadata{}, fmt.Errorf("anchor call: %w", err)
	}

	tokenID, err := c.call(ctx, c.cfg.NFTContract, "mint", []string{conv.UserID, anchorID, tokenURI})
	if err != nil {
		return ingest.AnchorMetadata{}, fmt.Errorf("mint call: %w", err)
	}

	return ingest.AnchorMetadata{
		AnchorID:         anchorID,
		TokenID:          tokenID,
		MerkleRoot:       root,
		TokenURI:         tokenURI,
		RegistryContract: c.cfg.RegistryContract,
		NFTContract:      c.cfg.NFTContract,
		AnchoredAt:       c.clock.Now(),
	}, nil
}

// VerifyAnchor asks the registry contract whether the stored merkle root for
// anchorID matches. The node answers "true"/"false"; anything else is an
// error surfaced to the caller.
func (c *Client) VerifyAnchor(ctx context.Context, anchorID, merkleRoot string) (bool, error) {
	out, err := c.call(ctx, c.cfg.RegistryContract, "verify_anchor", []string{anchorID, merkleRoot})
	if err != nil {
		return false, fmt.Errorf("verify_anchor call: %w", err)
	}
	switch out {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("verify_anchor returned %q", out)
	}
}

func (c *Client) call(ctx context.Context, contractID, function string, args []string) (string, error) {
	if contractID == "" {
		return "", fmt.Errorf("%s: contract address not configured", function)
	}
	body, err := json.Marshal(contractCallRequest{
		ContractID: contractID,
		Function:   function,
		Arguments:  args,
		NetworkID:  c.cfg.NetworkID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal call: %w", err)
	}

	url := c.cfg.NodeURL + "/v3/contracts/call"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: node call: %v", ingest.ErrTransient, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: node returned %d", ingest.ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("node returned %d for %s", resp.StatusCode, function)
	}

	var out contractCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode node response: %w", err)
	}
	if out.Reason != "" {
		return "", fmt.Errorf("contract call %s reverted: %s", function, out.Reason)
	}
	c.logger.Debug("contract call confirmed",
		zap.String("function", function),
		zap.String("tx_hash", out.TxHash),
	)
	return out.ReturnValue, nil
}
