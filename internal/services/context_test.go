package services_test

import (
	"context"
	"testing"

	"storydub/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "a1b2c3d4e5f6")
	ctx = services.WithStage(ctx, "translate")
	ctx = services.WithUnit(ctx, 3)
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "a1b2c3d4e5f6" {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "translate" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if unit, ok := services.UnitFromContext(ctx); !ok || unit != 3 {
		t.Fatalf("unexpected unit: %v %v", unit, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
