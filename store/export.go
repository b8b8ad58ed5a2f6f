package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// ExportJSON writes every entity of the store to w as a JSON array, in key order.
// Keys are exported through the entity's own JSON encoding.
func (c *Collection[E, K, P]) ExportJSON(ctx context.Context, w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	first := true
	for p, err := range c.All(ctx) {
		if err != nil {
			return err
		}
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("%w: export %q: %w", ErrSerialization, c.name, err)
		}
		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		first = false
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]\n")
	return err
}

// ImportJSON saves every entity of the JSON array read from r, overwriting
// entities with the same keys. It returns the number of entities saved.
// Relations are not checked.
func (c *Collection[E, K, P]) ImportJSON(ctx context.Context, r io.Reader) (int, error) {
	var all []E
	if err := json.NewDecoder(r).Decode(&all); err != nil {
		return 0, fmt.Errorf("%w: import %q: %w", ErrSerialization, c.name, err)
	}
	for i := range all {
		if err := c.Save(ctx, P(&all[i])); err != nil {
			return i, err
		}
	}
	return len(all), nil
}
