// Package storage archives raw provider payloads for audit and postmortems.
package storage

import (
	"context"
	"io"
)

type PutInput struct {
	Key         string // relative path, e.g. "wave/2026/10/15/evt_123.json"
	ContentType string
}

type PutResult struct {
	Key      string
	Location string
}

type Archive interface {
	Put(ctx context.Context, r io.Reader, in PutInput) (PutResult, error)
}
