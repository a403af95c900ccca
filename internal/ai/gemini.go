package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiSuggester implements PrioritySuggester using Google's Gemini models.
type GeminiSuggester struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiSuggester initializes a new Gemini client.
// apiKey should be provided from environment variables.
func NewGeminiSuggester(ctx context.Context, apiKey string) (*GeminiSuggester, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	// Gemini 2.0 Flash keeps suggestion latency low enough for the
	// evaluation screen.
	model := client.GenerativeModel("gemini-2.0-flash")

	// Force JSON response for structured parsing.
	model.ResponseMIMEType = "application/json"

	// Triage suggestions should be conservative, not creative.
	model.SetTemperature(0.2)

	return &GeminiSuggester{
		client: client,
		model:  model,
	}, nil
}

// Close cleans up the Gemini client resources.
func (s *GeminiSuggester) Close() {
	s.client.Close()
}

const triagePrompt = `Role: eres el núcleo de triaje de una central de despacho de ambulancias.
Analiza la descripción de la emergencia y responde SOLO con JSON:
{"nivelPrioridad": "ALTA"|"MEDIA"|"BAJA", "tipoAmbulancia": "BASICA"|"MEDICALIZADA", "motivo": "<una frase>"}

Reglas:
- ALTA + MEDICALIZADA: riesgo vital inmediato (paro, inconsciencia, hemorragia masiva, dolor torácico, dificultad respiratoria severa).
- MEDIA: lesiones que requieren atención pronta sin riesgo vital inmediato.
- BAJA + BASICA: traslados y lesiones menores.
- Ante la duda, elige la prioridad más alta de las plausibles.`

// SuggestPriority asks the model for an advisory priority for the
// description.
func (s *GeminiSuggester) SuggestPriority(ctx context.Context, descripcion string) (*Suggestion, error) {
	fullPrompt := fmt.Sprintf("%s\n\nDescripción: %s", triagePrompt, descripcion)

	resp, err := s.model.GenerateContent(ctx, genai.Text(fullPrompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response candidates from Gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}

	// Clean up potential markdown formatting (json mode should handle this,
	// safety first).
	cleanJSON := cleanJSONString(responseText.String())

	var result Suggestion
	if err := json.Unmarshal([]byte(cleanJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w. Raw: %s", err, cleanJSON)
	}

	return &result, nil
}

// cleanJSONString strips markdown code fences the model sometimes wraps
// around its JSON output.
func cleanJSONString(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
