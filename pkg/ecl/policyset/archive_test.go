package policyset

import (
	"context"
	"path/filepath"
	"testing"

	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/gateway"
	"erynoa/eclvm/pkg/ecl/storage"
)

// TestArchive tests storing and loading programs by id and by name.
func TestArchive(t *testing.T) {
	ctx := context.Background()
	bolt, err := storage.NewBoltBackend(storage.BoltBackendConfig{Path: filepath.Join(t.TempDir(), "ecl.bolt"), NoSync: true})
	if err != nil {
		t.Fatalf("NewBoltBackend failed: %v", err)
	}
	defer bolt.Close()

	for name, b := range map[string]storage.Backend{"memory": storage.NewMemoryBackend(), "bolt": bolt} {
		t.Run(name, func(t *testing.T) {
			a := NewArchive(b, true)
			set := &Set{Policies: map[string]gateway.CompiledPolicy{
				"public": gateway.PublicRealm(),
				"high":   gateway.HighTrust(),
			}}
			n, err := a.SaveSet(ctx, set)
			if err != nil || n != 2 {
				t.Fatalf("SaveSet failed: %d, %v", n, err)
			}

			p, id, err := a.Load(ctx, "high")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if !p.Equal(gateway.HighTrust().Program) {
				t.Errorf("Loaded program differs:\n%s", p.Disassemble())
			}
			want, _ := bytecode.ContentID(gateway.HighTrust().Program)
			if id != want {
				t.Errorf("Expected id %s, got %s", want, id)
			}
			if _, _, err := a.Load(ctx, id); err != nil {
				t.Errorf("Load by id failed: %v", err)
			}
			if _, _, err := a.Load(ctx, "missing"); err == nil {
				t.Error("Expected error for missing program")
			}

			list, err := a.List(ctx)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(list) != 2 || list[0].Name != "high" || list[1].Name != "public" {
				t.Errorf("Unexpected list %+v", list)
			}
		})
	}
}
