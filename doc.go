// Package logstorage stores uploaded ZIP archives in object storage and
// serves every inner file as an individually addressable resource.
//
// An archive is kept as a single blob. Its entry index travels as blob
// metadata, so looking up an inner file never downloads the archive; the
// bytes are fetched and decompressed only when the file is read.
//
// # Quick Start
//
// Upload an archive and list the links of its files:
//
//	st, err := store.New(memory.New())
//	if err != nil {
//	    return err
//	}
//	svc := logstorage.New(st, logstorage.WithBaseURL("https://logs.example.com/logs/"))
//	res, err := svc.Upload(ctx, "build-42.zip", body)
//	if err != nil {
//	    return err
//	}
//	for _, l := range res.Links {
//	    fmt.Println(l.URL, l.Size)
//	}
//
// Resolve and read one of the files:
//
//	f, ok, err := svc.Resolve(ctx, "build-42.zip/entrymfqs4zlm")
//	if err != nil || !ok {
//	    return err
//	}
//	rc, err := f.Open(ctx)
//
// # Backends
//
// The store package defines the Backend interface. Implementations live in
// store/memory, store/disk, store/azure, store/s3, store/gcs and store/oci.
package logstorage
