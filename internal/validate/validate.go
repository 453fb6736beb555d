// Package validate schema-checks inbound request bodies before any network
// call is made. Validators are plain functions returning either a normalized
// request or the complete list of violated fields, never just the first.
package validate

import (
	"fmt"

	"modelgate/config"
	"modelgate/internal/catalog"
	"modelgate/internal/core"
)

// Violation codes reported per field.
const (
	codeRequired   = "required"
	codeTooLong    = "too_long"
	codeTooMany    = "too_many"
	codeOutOfRange = "out_of_range"
	codeBadValue   = "invalid_value"
)

// Validator validates raw request values against the configured limits and
// the capability whitelists.
type Validator struct {
	catalog *catalog.Catalog
	limits  config.LimitsConfig
}

// New creates a validator bound to the startup catalog and limits.
func New(cat *catalog.Catalog, limits config.LimitsConfig) *Validator {
	return &Validator{catalog: cat, limits: limits}
}

// ChatRequest validates and normalizes a chat completion request.
// Defaults are substituted for absent numeric parameters. The returned
// violation list is nil exactly when the request is acceptable.
func (v *Validator) ChatRequest(req *core.ChatRequest) []core.FieldViolation {
	var violations []core.FieldViolation

	violations = append(violations, v.checkModel(req.Model, core.CapabilityChat)...)

	switch {
	case len(req.Messages) == 0:
		violations = append(violations, core.FieldViolation{
			Field: "messages", Code: codeRequired,
			Message: "messages must contain at least one entry",
		})
	case len(req.Messages) > v.limits.MaxMessages:
		violations = append(violations, core.FieldViolation{
			Field: "messages", Code: codeTooMany,
			Message: fmt.Sprintf("message count %d exceeds the maximum of %d", len(req.Messages), v.limits.MaxMessages),
		})
	}
	for i, m := range req.Messages {
		if m.Role != core.RoleSystem && m.Role != core.RoleUser && m.Role != core.RoleAssistant {
			violations = append(violations, core.FieldViolation{
				Field: fmt.Sprintf("messages[%d].role", i), Code: codeBadValue,
				Message: fmt.Sprintf("role must be system, user or assistant, got %q", m.Role),
			})
		}
		if m.Content == "" {
			violations = append(violations, core.FieldViolation{
				Field: fmt.Sprintf("messages[%d].content", i), Code: codeRequired,
				Message: "content must not be empty",
			})
		} else if len(m.Content) > v.limits.MaxMessageChars {
			violations = append(violations, core.FieldViolation{
				Field: fmt.Sprintf("messages[%d].content", i), Code: codeTooLong,
				Message: fmt.Sprintf("content length %d exceeds the maximum of %d", len(m.Content), v.limits.MaxMessageChars),
			})
		}
	}

	if req.Temperature == nil {
		t := v.limits.DefaultTemperature
		req.Temperature = &t
	} else if *req.Temperature < 0 || *req.Temperature > 2 {
		violations = append(violations, rangeViolation("temperature", *req.Temperature, 0, 2))
	}
	if req.TopP == nil {
		p := v.limits.DefaultTopP
		req.TopP = &p
	} else if *req.TopP < 0 || *req.TopP > 1 {
		violations = append(violations, rangeViolation("top_p", *req.TopP, 0, 1))
	}
	if req.MaxTokens != nil && (*req.MaxTokens < 1 || *req.MaxTokens > v.limits.MaxTokens) {
		violations = append(violations, core.FieldViolation{
			Field: "max_tokens", Code: codeOutOfRange,
			Message: fmt.Sprintf("max_tokens must be in [1,%d], got %d", v.limits.MaxTokens, *req.MaxTokens),
		})
	}
	if req.PresencePenalty != nil && (*req.PresencePenalty < -2 || *req.PresencePenalty > 2) {
		violations = append(violations, rangeViolation("presence_penalty", *req.PresencePenalty, -2, 2))
	}
	if req.FrequencyPenalty != nil && (*req.FrequencyPenalty < -2 || *req.FrequencyPenalty > 2) {
		violations = append(violations, rangeViolation("frequency_penalty", *req.FrequencyPenalty, -2, 2))
	}

	if req.Stop != nil && len(*req.Stop) > v.limits.MaxStopSequences {
		violations = append(violations, core.FieldViolation{
			Field: "stop", Code: codeTooMany,
			Message: fmt.Sprintf("stop accepts at most %d sequences, got %d", v.limits.MaxStopSequences, len(*req.Stop)),
		})
	}

	return violations
}

// EmbeddingRequest validates an embeddings request.
func (v *Validator) EmbeddingRequest(req *core.EmbeddingRequest) []core.FieldViolation {
	var violations []core.FieldViolation

	violations = append(violations, v.checkModel(req.Model, core.CapabilityEmbeddings)...)

	switch {
	case len(req.Input) == 0:
		violations = append(violations, core.FieldViolation{
			Field: "input", Code: codeRequired,
			Message: "input must contain at least one entry",
		})
	case len(req.Input) > v.limits.MaxEmbeddingInputs:
		violations = append(violations, core.FieldViolation{
			Field: "input", Code: codeTooMany,
			Message: fmt.Sprintf("input count %d exceeds the maximum of %d", len(req.Input), v.limits.MaxEmbeddingInputs),
		})
	}
	for i, in := range req.Input {
		if in == "" {
			violations = append(violations, core.FieldViolation{
				Field: fmt.Sprintf("input[%d]", i), Code: codeRequired,
				Message: "input entries must not be empty",
			})
		} else if len(in) > v.limits.MaxMessageChars {
			violations = append(violations, core.FieldViolation{
				Field: fmt.Sprintf("input[%d]", i), Code: codeTooLong,
				Message: fmt.Sprintf("input length %d exceeds the maximum of %d", len(in), v.limits.MaxMessageChars),
			})
		}
	}

	if req.EncodingFormat != "" && req.EncodingFormat != "float" && req.EncodingFormat != "base64" {
		violations = append(violations, core.FieldViolation{
			Field: "encoding_format", Code: codeBadValue,
			Message: fmt.Sprintf("encoding_format must be float or base64, got %q", req.EncodingFormat),
		})
	}

	return violations
}

// checkModel distinguishes an unknown model from one whitelisted for the
// other capability; the two are separate violation codes.
func (v *Validator) checkModel(model string, want core.Capability) []core.FieldViolation {
	if model == "" {
		return []core.FieldViolation{{Field: "model", Code: codeRequired, Message: "model is required"}}
	}
	var ok bool
	switch want {
	case core.CapabilityChat:
		ok = v.catalog.SupportsChat(model)
	case core.CapabilityEmbeddings:
		ok = v.catalog.SupportsEmbeddings(model)
	}
	if ok {
		return nil
	}
	if v.catalog.Known(model) {
		return []core.FieldViolation{{
			Field: "model", Code: core.CodeWrongCapability,
			Message: fmt.Sprintf("model %q is not available for %s", model, want),
		}}
	}
	return []core.FieldViolation{{
		Field: "model", Code: core.CodeUnknownModel,
		Message: fmt.Sprintf("unknown model %q", model),
	}}
}

func rangeViolation(field string, got, min, max float64) core.FieldViolation {
	return core.FieldViolation{
		Field: field, Code: codeOutOfRange,
		Message: fmt.Sprintf("%s must be in [%g,%g], got %g", field, min, max, got),
	}
}
