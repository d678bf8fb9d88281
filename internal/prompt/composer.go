// Package prompt composes the final prompt text sent to the Generative
// Provider Adapter, layering an optional starter template and a
// reference-type instruction on top of the user's own request.
package prompt

import (
	"fmt"

	"imagestudio-backend/internal/models"
)

var referenceInstructions = map[models.ReferenceType]string{
	models.ReferenceSubject:   "Preserve the subject's pose and identity from the reference image(s).",
	models.ReferenceFace:      "Preserve the facial identity from the reference image(s) exactly.",
	models.ReferenceFullImage: "Use the full reference image as the scene and composition basis.",
}

// Compose builds the effective prompt for a generation: the template's
// text (if an active template was referenced) followed by the user's own
// prompt, followed by a reference-type instruction when applicable.
// template may be nil when no template was referenced or it could not be
// resolved.
func Compose(userPrompt string, template *models.PromptTemplate, referenceType *models.ReferenceType) string {
	effective := userPrompt
	if template != nil && template.IsActive {
		effective = fmt.Sprintf("%s\n\nUser Request: %s", template.PromptText, userPrompt)
	}
	if referenceType != nil {
		if instruction, ok := referenceInstructions[*referenceType]; ok {
			effective = fmt.Sprintf("%s\n\n%s", effective, instruction)
		}
	}
	return effective
}
