// Package assetsync keeps a binary object store and a queryable metadata
// index in best-effort correspondence.
//
// The blob store is authoritative for whether an object exists and for its
// bytes, size and content type. The metadata index holds one descriptive
// record per object key (owner, folder, public URL, free-form additional
// data) and is the only source used for structured search.
//
// Writes always reach the blob store first. A metadata failure after a
// successful blob write never fails the operation and is never rolled back;
// instead the result carries a MetadataSync value so callers can detect the
// unsynced state and call ResyncMetadata.
//
// Adapters for the two stores live in subpackages: storage/{memory,fs,s3}
// for blobs and metaindex/{memory,postgres,sqlite,rediscache} for metadata.
package assetsync
