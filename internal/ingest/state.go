package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/purefact/internal/seen"
	"github.com/ppiankov/purefact/internal/source"
)

// State is everything a scan reads and mutates. It is built once at start
// and passed to every scan.
type State struct {
	Sources []source.Spec
	Seen    *seen.Set
	Store   seen.Store
}

// LoadState loads the seen-set from store.
func LoadState(ctx context.Context, sources []source.Spec, store seen.Store) (*State, error) {
	if len(sources) == 0 {
		return nil, errors.New("no sources configured")
	}
	if store == nil {
		return nil, errors.New("seen store is required")
	}
	set, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load seen set: %w", err)
	}
	return &State{Sources: sources, Seen: set, Store: store}, nil
}

// FileIdentity is the hex SHA-256 of a downloaded file.
func FileIdentity(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// EntryIdentity is the feed-supplied entry id (GUID, else link) with line
// breaks folded so it fits on one line of the seen file.
func EntryIdentity(it source.Item) string {
	return strings.TrimSpace(lineBreaks.Replace(it.EntryID))
}
