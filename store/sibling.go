package store

import "context"

// SaveSibling gives b the key of a and saves it in its own store.
// The stores must be declared as siblings for deletion to take the pair into account.
func SaveSibling[EA any, K any, PA EntityPtr[EA, K], EB any, PB EntityPtr[EB, K]](
	ctx context.Context,
	as *Collection[EA, K, PA], a PA,
	bs *Collection[EB, K, PB], b PB,
) error {
	b.SetKey(a.GetKey())
	return bs.Save(ctx, b)
}

// GetSibling returns the entity of bs stored under a's key.
// Returns ErrNotFound if there is none.
func GetSibling[EA any, K any, PA EntityPtr[EA, K], EB any, PB EntityPtr[EB, K]](
	ctx context.Context,
	as *Collection[EA, K, PA], a PA,
	bs *Collection[EB, K, PB],
) (PB, error) {
	return bs.Get(ctx, a.GetKey())
}
