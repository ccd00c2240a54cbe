// Package zarr reads and writes the metadata layer of zarr stores, in both
// the version 2 layout (.zarray, .zgroup and .zattrs documents) and the
// version 3 layout (a single zarr.json document per node).
//
// Metadata documents are decoded through small composable Decoders over a
// generic JSON value tree. Polymorphic fields such as chunk_key_encoding
// and chunk_grid are tagged unions, resolved by a discriminator table
// built when the union is declared. Encoding is the reverse walk: typed
// records list their fields and EncodeValue turns them back into a value
// tree.
//
// A Resolver finds the metadata of a node when its type or format is not
// known up front, reading every candidate document concurrently:
//
//	sp := zarr.StorePath{Store: store, Path: zarr.Path{"foo", "bar"}}
//	doc, err := zarr.ResolveDocument(ctx, sp, zarr.NodeTypeUnknown, zarr.ZarrFormatUnknown)
//
// Open and OpenArray wrap resolution in node handles that can list group
// members and read and write array chunks.
package zarr
