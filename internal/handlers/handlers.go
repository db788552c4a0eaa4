package handlers

import (
	"clipvault/internal/indexer"
	"clipvault/internal/indexstore"
	"clipvault/internal/query"
	"clipvault/internal/startup"
	"clipvault/internal/thumbnail"
)

// Handlers contains all HTTP request handlers and their dependencies.
type Handlers struct {
	store   *indexstore.Store
	indexer *indexer.Indexer
	query   *query.Engine
	thumbs  *thumbnail.Store
	config  *startup.Config
}

// New creates a new Handlers instance with the given dependencies.
func New(store *indexstore.Store, idx *indexer.Indexer, qe *query.Engine, thumbs *thumbnail.Store, config *startup.Config) *Handlers {
	return &Handlers{
		store:   store,
		indexer: idx,
		query:   qe,
		thumbs:  thumbs,
		config:  config,
	}
}
