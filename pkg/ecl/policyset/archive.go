package policyset

import (
	"context"
	"fmt"
	"strings"

	"erynoa/eclvm/pkg/ecl/bytecode"
	"erynoa/eclvm/pkg/ecl/storage"
)

// Key prefixes in storage.BucketPrograms.
const (
	archiveBlobPrefix = "id/"
	archiveNamePrefix = "name/"
)

// ArchivedProgram describes one stored program.
type ArchivedProgram struct {
	Name string
	ID   string
}

// Archive stores compiled programs in a storage backend, addressed by
// content id and by policy name.
type Archive struct {
	backend  storage.Backend
	compress bool
}

// NewArchive creates an archive over b. Blobs are zstd-compressed when
// compress is set.
func NewArchive(b storage.Backend, compress bool) *Archive {
	return &Archive{backend: b, compress: compress}
}

// Save stores p under its content id and points name at it.
func (a *Archive) Save(ctx context.Context, name string, p bytecode.Program) (string, error) {
	id, err := bytecode.ContentID(p)
	if err != nil {
		return "", err
	}
	blob, err := bytecode.Encode(p, bytecode.EncodeOptions{Compress: a.compress})
	if err != nil {
		return "", err
	}
	if err := a.backend.Put(ctx, storage.BucketPrograms, archiveBlobPrefix+id, blob); err != nil {
		return "", fmt.Errorf("failed to store program %s: %w", id, err)
	}
	if name != "" {
		if err := a.backend.Put(ctx, storage.BucketPrograms, archiveNamePrefix+name, []byte(id)); err != nil {
			return "", fmt.Errorf("failed to index program %s: %w", name, err)
		}
	}
	return id, nil
}

// SaveSet archives every policy of set and returns how many were written.
func (a *Archive) SaveSet(ctx context.Context, set *Set) (int, error) {
	n := 0
	for name, p := range set.Policies {
		if _, err := a.Save(ctx, name, p.Program); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Load returns the program for ref, which is a content id or a policy name.
func (a *Archive) Load(ctx context.Context, ref string) (bytecode.Program, string, error) {
	id := ref
	if data, err := a.backend.Get(ctx, storage.BucketPrograms, archiveNamePrefix+ref); err != nil {
		return nil, "", err
	} else if data != nil {
		id = string(data)
	}
	blob, err := a.backend.Get(ctx, storage.BucketPrograms, archiveBlobPrefix+id)
	if err != nil {
		return nil, "", err
	}
	if blob == nil {
		return nil, "", fmt.Errorf("no archived program %q", ref)
	}
	p, err := bytecode.Decode(blob)
	if err != nil {
		return nil, "", fmt.Errorf("archived program %s: %w", id, err)
	}
	return p, id, nil
}

// List returns every named program in name order.
func (a *Archive) List(ctx context.Context) ([]ArchivedProgram, error) {
	keys, err := a.backend.List(ctx, storage.BucketPrograms, archiveNamePrefix, 0)
	if err != nil {
		return nil, err
	}
	out := make([]ArchivedProgram, 0, len(keys))
	for _, k := range keys {
		id, err := a.backend.Get(ctx, storage.BucketPrograms, k)
		if err != nil {
			return nil, err
		}
		out = append(out, ArchivedProgram{Name: strings.TrimPrefix(k, archiveNamePrefix), ID: string(id)})
	}
	return out, nil
}
