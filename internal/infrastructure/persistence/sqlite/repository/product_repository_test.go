package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"ivdhub/internal/domain/pipeline"
	"ivdhub/internal/ports"
)

func TestProductUpsertKeepsOneRowPerRegNoAndSource(t *testing.T) {
	repo := NewProductRepository(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := repo.Upsert(ctx, ports.Product{
		RegNo: "GXZZ20240001", SourceKey: "nhsa_codes",
		Name: "HBV assay kit", CompanyName: "Acme", CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second, err := repo.Upsert(ctx, ports.Product{
		RegNo: "GXZZ20240001", SourceKey: "nhsa_codes",
		Name: "HBV assay kit v2", CompanyName: "Acme", CreatedAt: now, UpdatedAt: now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ProductID != first.ProductID {
		t.Fatalf("upsert created new row %d, want %d", second.ProductID, first.ProductID)
	}
	if second.Name != "HBV assay kit v2" {
		t.Fatalf("name not updated: %q", second.Name)
	}
}

func TestProductSupersedeRejectsCycles(t *testing.T) {
	repo := NewProductRepository(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	a, err := repo.Upsert(ctx, ports.Product{RegNo: "R1", SourceKey: "nmpa_registry", Name: "kit", CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("upsert a: %v", err)
	}
	b, err := repo.Upsert(ctx, ports.Product{RegNo: "R1", SourceKey: "procurement", Name: "kit dup", CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("upsert b: %v", err)
	}

	if err := repo.Supersede(ctx, b.ProductID, a.ProductID); err != nil {
		t.Fatalf("supersede: %v", err)
	}

	hidden, err := repo.GetByRegNo(ctx, "R1", "procurement")
	if err != nil {
		t.Fatalf("get hidden: %v", err)
	}
	if !hidden.Hidden || hidden.SupersededByID == nil || *hidden.SupersededByID != a.ProductID {
		t.Fatalf("hidden product = %+v", hidden)
	}

	// closing the loop back onto b must be rejected
	if err := repo.Supersede(ctx, a.ProductID, b.ProductID); !errors.Is(err, pipeline.ErrSupersededCycle) {
		t.Fatalf("cycle err = %v, want ErrSupersededCycle", err)
	}
	if err := repo.Supersede(ctx, a.ProductID, a.ProductID); !errors.Is(err, pipeline.ErrSupersededCycle) {
		t.Fatalf("self supersede err = %v, want ErrSupersededCycle", err)
	}
}
