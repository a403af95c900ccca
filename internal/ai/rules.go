package ai

import (
	"context"
	"strings"
)

// RuleSuggester is a keyword-based PrioritySuggester used when no model API
// key is configured. It never errs; an unrecognized description falls back
// to MEDIA so the operator still gets a starting point.
type RuleSuggester struct {
	altaKeywords []string
	bajaKeywords []string
}

func NewRuleSuggester() *RuleSuggester {
	return &RuleSuggester{
		altaKeywords: []string{
			"no respira", "paro", "infarto", "inconsciente", "hemorragia",
			"atragant", "ahog", "convulsi", "dolor en el pecho", "accidente grave",
		},
		bajaKeywords: []string{
			"corte leve", "esguince", "fiebre leve", "traslado", "dolor leve",
			"herida menor", "malestar",
		},
	}
}

// SuggestPriority classifies the description by keyword matching.
func (s *RuleSuggester) SuggestPriority(_ context.Context, descripcion string) (*Suggestion, error) {
	desc := strings.ToLower(descripcion)

	for _, kw := range s.altaKeywords {
		if strings.Contains(desc, kw) {
			return &Suggestion{
				NivelPrioridad: "ALTA",
				TipoAmbulancia: "MEDICALIZADA",
				Motivo:         "la descripción menciona \"" + kw + "\"",
			}, nil
		}
	}
	for _, kw := range s.bajaKeywords {
		if strings.Contains(desc, kw) {
			return &Suggestion{
				NivelPrioridad: "BAJA",
				TipoAmbulancia: "BASICA",
				Motivo:         "la descripción menciona \"" + kw + "\"",
			}, nil
		}
	}

	return &Suggestion{
		NivelPrioridad: "MEDIA",
		TipoAmbulancia: "BASICA",
		Motivo:         "sin señales claras de riesgo vital en la descripción",
	}, nil
}
