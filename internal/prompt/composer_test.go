package prompt

import (
	"strings"
	"testing"

	"imagestudio-backend/internal/models"
)

func TestComposePlainPrompt(t *testing.T) {
	got := Compose("a cat on a skateboard", nil, nil)
	if got != "a cat on a skateboard" {
		t.Fatalf("expected prompt unchanged, got %q", got)
	}
}

func TestComposeWithTemplate(t *testing.T) {
	template := &models.PromptTemplate{PromptText: "studio lighting, neutral backdrop, sharp focus portrait of ", IsActive: true}
	got := Compose("a golden retriever", template, nil)
	want := "studio lighting, neutral backdrop, sharp focus portrait of \n\nUser Request: a golden retriever"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestComposeIgnoresInactiveTemplate(t *testing.T) {
	template := &models.PromptTemplate{PromptText: "should not appear", IsActive: false}
	got := Compose("a castle", template, nil)
	if strings.Contains(got, "should not appear") {
		t.Fatalf("inactive template text leaked into composed prompt: %q", got)
	}
	if got != "a castle" {
		t.Fatalf("expected prompt unchanged for inactive template, got %q", got)
	}
}

func TestComposeAppendsReferenceInstruction(t *testing.T) {
	face := models.ReferenceFace
	got := Compose("make them smile", nil, &face)
	if !strings.Contains(got, "make them smile") || !strings.Contains(got, "facial identity") {
		t.Fatalf("expected prompt with reference instruction, got %q", got)
	}
}
