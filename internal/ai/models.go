package ai

// Suggestion captures the structured output of a triage suggestion.
type Suggestion struct {
	// NivelPrioridad is the advisory priority: "ALTA", "MEDIA" or "BAJA".
	NivelPrioridad string `json:"nivelPrioridad"`

	// TipoAmbulancia is the advisory vehicle type: "BASICA" or "MEDICALIZADA".
	TipoAmbulancia string `json:"tipoAmbulancia"`

	// Motivo is a one-sentence explanation shown to the operator.
	Motivo string `json:"motivo"`
}
