// Package catalog holds the static model whitelist split by capability.
// It is built once from configuration at startup and immutable afterwards.
package catalog

import (
	"time"

	"modelgate/internal/core"
)

// Catalog is the read-only set of models the gateway will serve.
type Catalog struct {
	chat       map[string]struct{}
	embeddings map[string]struct{}
	models     []core.Model
}

// New builds a catalog from the configured chat and embedding model lists.
func New(chatModels, embeddingModels []string) *Catalog {
	c := &Catalog{
		chat:       make(map[string]struct{}, len(chatModels)),
		embeddings: make(map[string]struct{}, len(embeddingModels)),
	}
	created := time.Now().Unix()
	for _, id := range chatModels {
		c.chat[id] = struct{}{}
		c.models = append(c.models, core.Model{
			ID:         id,
			Object:     "model",
			OwnedBy:    "upstream",
			Created:    created,
			Capability: core.CapabilityChat,
		})
	}
	for _, id := range embeddingModels {
		c.embeddings[id] = struct{}{}
		c.models = append(c.models, core.Model{
			ID:         id,
			Object:     "model",
			OwnedBy:    "upstream",
			Created:    created,
			Capability: core.CapabilityEmbeddings,
		})
	}
	return c
}

// SupportsChat reports whether the model is whitelisted for chat completions.
func (c *Catalog) SupportsChat(model string) bool {
	_, ok := c.chat[model]
	return ok
}

// SupportsEmbeddings reports whether the model is whitelisted for embeddings.
func (c *Catalog) SupportsEmbeddings(model string) bool {
	_, ok := c.embeddings[model]
	return ok
}

// Known reports whether the model appears in either whitelist.
func (c *Catalog) Known(model string) bool {
	return c.SupportsChat(model) || c.SupportsEmbeddings(model)
}

// List returns the full static catalog in /v1/models response shape.
func (c *Catalog) List() *core.ModelsResponse {
	data := make([]core.Model, len(c.models))
	copy(data, c.models)
	return &core.ModelsResponse{Object: "list", Data: data}
}
