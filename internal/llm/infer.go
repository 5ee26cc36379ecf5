package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/docufill/docufill/internal/extract"
)

// typeInference is the structured response the model must produce.
type typeInference struct {
	Type       string  `json:"type" jsonschema:"enum=PERSON_NAME,enum=ORGANIZATION_NAME,enum=DATE,enum=MONETARY_AMOUNT,enum=ADDRESS,enum=DURATION,enum=EMAIL,enum=PHONE,enum=NUMBER,enum=PERCENTAGE,enum=BOOLEAN,enum=FREE_TEXT"`
	Confidence float64 `json:"confidence"`
}

const inferSystemPrompt = `You classify fill-in placeholders found in legal documents.
Given a placeholder token and the text surrounding it, pick the single best
semantic type and report your confidence between 0 and 1.`

// inferResponseSchema validates the model's reply before it is trusted. The
// request-side schema constrains well-behaved providers, but the reply still
// arrives as untyped text.
var inferResponseSchema = jsonschema.MustCompileString("infer.json", `{
	"type": "object",
	"properties": {
		"type": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["type", "confidence"],
	"additionalProperties": false
}`)

// Inferencer adapts a Provider to the extraction classifier's advisory
// inference hook.
type Inferencer struct {
	provider Provider
	schema   map[string]any
}

// NewInferencer wraps a completion provider for slot-type inference.
func NewInferencer(p Provider) *Inferencer {
	return &Inferencer{
		provider: p,
		schema:   GenerateSchema[typeInference](),
	}
}

// InferType asks the model to classify one placeholder. Errors and malformed
// replies are returned to the caller, which treats them as "no advice".
func (i *Inferencer) InferType(ctx context.Context, spanText, contextWindow string) (extract.SlotType, float64, error) {
	prompt := fmt.Sprintf("Placeholder: %s\n\nSurrounding text:\n%s", spanText, contextWindow)

	raw, err := i.provider.Complete(ctx, prompt, CompletionOpts{
		System:     inferSystemPrompt,
		MaxTokens:  200,
		Format:     "json",
		Schema:     i.schema,
		SchemaName: "TypeInference",
	})
	if err != nil {
		return "", 0, fmt.Errorf("inference completion: %w", err)
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return "", 0, fmt.Errorf("parsing inference reply: %w", err)
	}
	if err := inferResponseSchema.Validate(decoded); err != nil {
		return "", 0, fmt.Errorf("inference reply failed schema validation: %w", err)
	}

	var out typeInference
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", 0, fmt.Errorf("decoding inference reply: %w", err)
	}

	t := extract.SlotType(strings.ToUpper(strings.TrimSpace(out.Type)))
	if !extract.ValidSlotType(t) {
		return "", 0, fmt.Errorf("model returned unknown type %q", out.Type)
	}
	return t, out.Confidence, nil
}
