// Package mock provides an in-memory anchoring ledger for development and
// tests. It mimics the AnchorRegistry and AccessNFT contracts without
// touching a real node.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/anithp/buddi-chain/internal/ingest"
)

type anchorEntry struct {
	merkleRoot string
	externalID string
}

type tokenEntry struct {
	owner    string
	anchorID uint64
	tokenURI string
}

// Ledger implements ingest.Anchorer against in-memory contract state.
// Anchor and token IDs are monotonic, seeded from the registry address so
// two ledgers never collide.
type Ledger struct {
	mu          sync.Mutex
	registry    string
	nft         string
	baseID      uint64
	anchorCount uint64
	tokenCount  uint64
	anchors     map[uint64]anchorEntry
	tokens      map[uint64]tokenEntry
	clock       ingest.Clock
}

// New deploys a fresh mock ledger with generated contract addresses.
func New(clock ingest.Clock) *Ledger {
	registry := "ct_" + hex.EncodeToString(uuid.New().NodeID()) + uuid.NewString()[:8]
	return &Ledger{
		registry: registry,
		nft:      "ct_" + uuid.NewString()[:16],
		baseID:   seedFrom(registry),
		anchors:  make(map[uint64]anchorEntry),
		tokens:   make(map[uint64]tokenEntry),
		clock:    clock,
	}
}

// Anchor records the conversation's merkle root in the registry and mints an
// access token for its owner.
func (l *Ledger) Anchor(_ context.Context, conv ingest.EnrichedConversation) (ingest.AnchorMetadata, error) {
	root, err := MerkleRoot(conv)
	if err != nil {
		return ingest.AnchorMetadata{}, fmt.Errorf("compute merkle root: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.anchorCount++
	anchorID := l.baseID + l.anchorCount
	l.anchors[anchorID] = anchorEntry{merkleRoot: root, externalID: conv.ExternalID}

	l.tokenCount++
	tokenID := l.baseID + l.tokenCount
	tokenURI := fmt.Sprintf("https://buddi.ai/memory/%s", conv.ExternalID)
	l.tokens[tokenID] = tokenEntry{owner: conv.UserID, anchorID: anchorID, tokenURI: tokenURI}

	return ingest.AnchorMetadata{
		AnchorID:         strconv.FormatUint(anchorID, 10),
		TokenID:          strconv.FormatUint(tokenID, 10),
		MerkleRoot:       root,
		TokenURI:         tokenURI,
		RegistryContract: l.registry,
		NFTContract:      l.nft,
		AnchoredAt:       l.clock.Now(),
	}, nil
}

// VerifyAnchor reports whether the stored merkle root for anchorID matches.
// An anchor ID the registry never issued verifies as false, not as an error.
func (l *Ledger) VerifyAnchor(_ context.Context, anchorID, merkleRoot string) (bool, error) {
	id, err := strconv.ParseUint(anchorID, 10, 64)
	if err != nil {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.anchors[id]
	return ok && entry.merkleRoot == merkleRoot, nil
}

// OwnerOf returns the owner of a minted token, or "" when unknown.
func (l *Ledger) OwnerOf(tokenID string) string {
	id, err := strconv.ParseUint(tokenID, 10, 64)
	if err != nil {
		return ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tokens[id].owner
}

// Contracts returns the mock registry and NFT contract addresses.
func (l *Ledger) Contracts() (registry, nft string) {
	return l.registry, l.nft
}

// MerkleRoot hashes the canonical JSON of the conversation content. A single
// leaf degenerates to its own hash, which is all the PoC anchors.
func MerkleRoot(conv ingest.EnrichedConversation) (string, error) {
	leaf, err := json.Marshal(struct {
		ExternalID string `json:"external_id"`
		Title      string `json:"title"`
		Overview   string `json:"overview"`
		UserID     string `json:"user_id"`
	}{conv.ExternalID, conv.Title, conv.Overview, conv.UserID})
	if err != nil {
		return "", fmt.Errorf("marshal leaf: %w", err)
	}
	sum := sha256.Sum256(leaf)
	return hex.EncodeToString(sum[:]), nil
}

// seedFrom derives a numeric base ID from the tail of a contract address.
func seedFrom(addr string) uint64 {
	if len(addr) < 8 {
		return 1000
	}
	tail := addr[len(addr)-8:]
	if v, err := strconv.ParseUint(tail, 16, 64); err == nil {
		return v % 1_000_000
	}
	sum := sha256.Sum256([]byte(addr))
	return uint64(sum[0])<<8 | uint64(sum[1])
}
