package gcsuploader

import (
	"github.com/dvloznov/effortless/internal/gcs"
)

// Re-export interface from shared package
type ObjectStore = gcs.ObjectStore

var _ ObjectStore = (*Client)(nil)
