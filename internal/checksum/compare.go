package checksum

import "context"

// Diff lists how a directory drifted from its manifest.
type Diff struct {
	Modified []string `json:"modified,omitempty"`
	Missing  []string `json:"missing,omitempty"`
	Added    []string `json:"added,omitempty"`
}

func (d Diff) Clean() bool {
	return len(d.Modified) == 0 && len(d.Missing) == 0 && len(d.Added) == 0
}

// Compare rebuilds the manifest of dir and reports locally modified, deleted
// and new files relative to want.
func Compare(ctx context.Context, want Manifest, dir string) (Diff, error) {
	got, err := Build(ctx, dir)
	if err != nil {
		return Diff{}, err
	}
	var d Diff
	for _, e := range want.Entries {
		h, ok := got.Lookup(e.Path)
		switch {
		case !ok:
			d.Missing = append(d.Missing, e.Path)
		case h != e.Hash:
			d.Modified = append(d.Modified, e.Path)
		}
	}
	for _, e := range got.Entries {
		if _, ok := want.Lookup(e.Path); !ok {
			d.Added = append(d.Added, e.Path)
		}
	}
	return d, nil
}
